// Package session はクライアント側のログイン状態（匿名 / 認証済み）を管理します。
package session

import (
	"errors"
	"sync"
)

// State はセッションの状態です。
type State int

const (
	Anonymous State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "anonymous"
}

// Cause は状態遷移のきっかけです。
type Cause string

const (
	CauseLogin     Cause = "login"
	CauseLogout    Cause = "logout"
	CauseReject    Cause = "reject"
	CauseRehydrate Cause = "rehydrate"
)

// Identity はクライアントが保持するユーザー情報です。
type Identity struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Handle string `json:"handle"`
	Email  string `json:"email,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// Snapshot はある時点のセッション状態です。Version は遷移のたびに増えます。
type Snapshot struct {
	State    State
	Identity *Identity
	Token    string
	Version  uint64
}

// Authenticated は認証済みかどうかを返します。
func (s Snapshot) Authenticated() bool {
	return s.State == Authenticated
}

// Listener は状態が実際に変化したときに1回だけ呼ばれます。
// ストアのロック内で呼ばれるため、Listener からストアの遷移メソッドを呼んではいけません。
type Listener func(prev, next Snapshot, cause Cause)

// Store はセッション状態の唯一の書き手です。
// すべての遷移は1つのミューテックスで直列化されます。
type Store struct {
	mu        sync.Mutex
	storage   Storage
	current   Snapshot
	listeners map[int]Listener
	nextID    int
}

// NewStore は匿名状態の Store を作成します。storage が nil の場合は永続化しません。
func NewStore(storage Storage) *Store {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	return &Store{storage: storage, listeners: make(map[int]Listener)}
}

// Snapshot は現在の状態を返します。
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyCurrent()
}

// Authorization は送信に使うトークンと、その時点の Version を返します。
// 匿名状態なら ok は false です。
func (s *Store) Authorization() (token string, version uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Token, s.current.Version, s.current.State == Authenticated
}

// Subscribe は Listener を登録し、解除用の関数を返します。
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Rehydrate は永続化された状態を読み込みます。
// トークンはサーバーに問い合わせずに信用し、最初に保護 API が 401 を返した時点で Reject されます。
// 内容が壊れている場合は削除して匿名状態のままにします。
func (s *Store) Rehydrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	persisted, err := s.storage.Load()
	if err != nil {
		clearErr := s.clearStorage()
		s.transition(Snapshot{State: Anonymous}, CauseRehydrate)
		return errors.Join(err, clearErr)
	}
	if persisted == nil || persisted.Token == "" {
		return nil
	}

	identity := persisted.Identity
	s.transition(Snapshot{State: Authenticated, Identity: &identity, Token: persisted.Token}, CauseRehydrate)
	return nil
}

// Login は認証済み状態に遷移し、永続化します。
func (s *Store) Login(identity Identity, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.login(identity, token)
}

// CompareAndLogin は Version が変わっていない場合だけ Login します。
// リクエスト送信後に Logout / Reject が起きていれば false を返します。
func (s *Store) CompareAndLogin(version uint64, identity Identity, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current.Version != version {
		return false, nil
	}
	return true, s.login(identity, token)
}

// Logout は匿名状態に遷移し、永続化された状態を削除します。何度呼んでも構いません。
func (s *Store) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.clearStorage()
	if s.current.State == Anonymous {
		return err
	}
	s.transition(Snapshot{State: Anonymous}, CauseLogout)
	return err
}

// Reject はサーバーが 401 を返したときの強制ログアウトです。
// version はそのリクエストを送った時点の Version で、既に別の遷移が起きていれば何もしません。
// 遷移した場合は true を返します。永続化先を消せなかった場合もメモリ上は匿名状態になり、エラーを返します。
func (s *Store) Reject(version uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.State == Anonymous || s.current.Version != version {
		return false, nil
	}
	err := s.clearStorage()
	s.transition(Snapshot{State: Anonymous}, CauseReject)
	return true, err
}

// clearStorage は永続化された状態を削除します。
// Clear に失敗した場合は空のトークンで上書きし、次の Rehydrate で匿名状態になるようにします。
func (s *Store) clearStorage() error {
	err := s.storage.Clear()
	if err == nil {
		return nil
	}
	if saveErr := s.storage.Save(Persisted{}); saveErr != nil {
		return errors.Join(err, saveErr)
	}
	return nil
}

func (s *Store) login(identity Identity, token string) error {
	if token == "" {
		return errors.New("session: empty token")
	}
	if err := s.storage.Save(Persisted{Identity: identity, Token: token}); err != nil {
		return err
	}
	s.transition(Snapshot{State: Authenticated, Identity: &identity, Token: token}, CauseLogin)
	return nil
}

// transition は s.mu を保持した状態で呼びます。
func (s *Store) transition(next Snapshot, cause Cause) {
	prev := s.copyCurrent()
	next.Version = s.current.Version + 1
	s.current = next

	if prev.State == Anonymous && next.State == Anonymous {
		return
	}
	snapshot := s.copyCurrent()
	for _, l := range s.listeners {
		l(prev, snapshot, cause)
	}
}

func (s *Store) copyCurrent() Snapshot {
	out := s.current
	if out.Identity != nil {
		identity := *out.Identity
		out.Identity = &identity
	}
	return out
}
