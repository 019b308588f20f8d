// Package guard はクライアントの画面遷移をセッション状態で制限します。
package guard

import (
	"strings"
	"sync"

	"github.com/yourusername/inkpost/internal/client/session"
)

const (
	HomePath  = "/"
	LoginPath = "/login"
)

// Decision はゲートの判定結果です。Allowed が false なら Redirect に遷移します。
// From はログイン後に戻る先で、AuthGate が拒否したときだけ設定されます。
type Decision struct {
	Allowed  bool
	Redirect string
	From     string
}

// GuestGate はログイン済みのユーザーを / に戻します。
func GuestGate(snap session.Snapshot, requested string) Decision {
	if snap.Authenticated() {
		return Decision{Redirect: HomePath}
	}
	return Decision{Allowed: true}
}

// AuthGate は匿名ユーザーを /login に送ります。
func AuthGate(snap session.Snapshot, requested string) Decision {
	if !snap.Authenticated() {
		return Decision{Redirect: LoginPath, From: requested}
	}
	return Decision{Allowed: true}
}

func publicGate(session.Snapshot, string) Decision {
	return Decision{Allowed: true}
}

// Access はルートの種類です。
type Access int

const (
	Public Access = iota
	GuestOnly
	AuthOnly
)

// Route はパターンとアクセス種別の組です。パターンの :name は1セグメントに一致します。
type Route struct {
	Pattern string
	Access  Access
}

// DefaultRoutes はクライアントのルート表です。
var DefaultRoutes = []Route{
	{Pattern: "/", Access: Public},
	{Pattern: "/login", Access: GuestOnly},
	{Pattern: "/register", Access: GuestOnly},
	{Pattern: "/posts/new", Access: AuthOnly},
	{Pattern: "/posts/:id", Access: Public},
	{Pattern: "/posts/:id/edit", Access: AuthOnly},
	{Pattern: "/posts/:id/delete", Access: AuthOnly},
	{Pattern: "/posts/:id/comment", Access: AuthOnly},
	{Pattern: "/comments/:id/delete", Access: AuthOnly},
	{Pattern: "/profile", Access: AuthOnly},
	{Pattern: "/users/:id", Access: Public},
}

// Navigator は現在地とログイン後の戻り先を管理します。
type Navigator struct {
	store  *session.Store
	routes []Route

	mu       sync.Mutex
	current  string
	returnTo string
	forced   []string
}

// NewNavigator は Navigator を作成し、Reject による強制ログアウトを購読します。
// routes が nil なら DefaultRoutes を使います。
func NewNavigator(store *session.Store, routes []Route) *Navigator {
	if routes == nil {
		routes = DefaultRoutes
	}
	n := &Navigator{store: store, routes: routes, current: HomePath}
	store.Subscribe(n.onChange)
	return n
}

// Go は path への遷移を試み、実際に到達した場所の判定を返します。
// 未知のパスは公開ルートとして扱います。
func (n *Navigator) Go(path string) Decision {
	d := n.gate(path)(n.store.Snapshot(), path)

	n.mu.Lock()
	defer n.mu.Unlock()
	if d.Allowed {
		n.current = path
		return d
	}
	n.current = d.Redirect
	if d.From != "" {
		n.returnTo = d.From
	}
	return d
}

// Current は現在のパスを返します。
func (n *Navigator) Current() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// ReturnPath はログイン後の戻り先を1度だけ返します。無ければ / です。
func (n *Navigator) ReturnPath() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	p := n.returnTo
	n.returnTo = ""
	if p == "" || n.accessLocked(p) == GuestOnly {
		return HomePath
	}
	return p
}

// Forced は強制的に /login へ送られた直前のパスを古い順に返します。
func (n *Navigator) Forced() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.forced...)
}

// onChange はストアのロック内で呼ばれるのでストアを触りません。
func (n *Navigator) onChange(prev, next session.Snapshot, cause session.Cause) {
	if cause != session.CauseReject {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current != LoginPath {
		n.forced = append(n.forced, n.current)
		if n.accessLocked(n.current) == AuthOnly {
			n.returnTo = n.current
		}
	}
	n.current = LoginPath
}

func (n *Navigator) gate(path string) func(session.Snapshot, string) Decision {
	n.mu.Lock()
	access := n.accessLocked(path)
	n.mu.Unlock()

	switch access {
	case GuestOnly:
		return GuestGate
	case AuthOnly:
		return AuthGate
	default:
		return publicGate
	}
}

// accessLocked は最初に一致したルートのアクセス種別を返します。
func (n *Navigator) accessLocked(path string) Access {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	for _, r := range n.routes {
		if match(r.Pattern, path) {
			return r.Access
		}
	}
	return Public
}

func match(pattern, path string) bool {
	ps := strings.Split(strings.Trim(pattern, "/"), "/")
	xs := strings.Split(strings.Trim(path, "/"), "/")
	if len(ps) != len(xs) {
		return false
	}
	for i, p := range ps {
		if strings.HasPrefix(p, ":") {
			if xs[i] == "" {
				return false
			}
			continue
		}
		if p != xs[i] {
			return false
		}
	}
	return true
}
