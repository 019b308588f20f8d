// Package cli は inkpost のコマンドラインクライアントです。
//
// 各コマンドは画面のパスに対応し、実行前に guard.Navigator を通ります。
// ゲートがリダイレクトした場合はコマンドを実行せず、その旨を表示します。
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/yourusername/inkpost/internal/client/api"
	"github.com/yourusername/inkpost/internal/client/guard"
)

// RedirectError はゲートにより別の画面へ送られたことを表します。
type RedirectError struct {
	Requested string
	To        string
}

func (e *RedirectError) Error() string {
	if e.To == guard.LoginPath {
		return fmt.Sprintf("%s にはログインが必要です（%s に移動しました）", e.Requested, e.To)
	}
	return fmt.Sprintf("%s は表示できません（%s に移動しました）", e.Requested, e.To)
}

// ErrUsage はコマンドの引数が足りないことを表します。
var ErrUsage = errors.New("cli: invalid usage")

type command struct {
	usage string
	path  func(args []string) string
	nargs int
	run   func(a *App, ctx context.Context, args []string) error
}

func fixed(p string) func([]string) string {
	return func([]string) string { return p }
}

var commands map[string]command

// commands は (*App).profile から参照されるため、初期化サイクルを避けて init で設定します。
func init() {
	commands = map[string]command{
		"register":       {usage: "register", path: fixed("/register"), run: (*App).register},
		"login":          {usage: "login", path: fixed("/login"), run: (*App).login},
		"logout":         {usage: "logout", run: (*App).logout},
		"whoami":         {usage: "whoami", path: fixed("/profile"), run: (*App).whoami},
		"posts":          {usage: "posts [search]", path: fixed("/"), run: (*App).posts},
		"post":           {usage: "post <id>", path: idPath("/posts/", ""), nargs: 1, run: (*App).post},
		"post-new":       {usage: "post-new <title> <content>", path: fixed("/posts/new"), nargs: 2, run: (*App).postNew},
		"post-edit":      {usage: "post-edit <id> <title> [content]", path: idPath("/posts/", "/edit"), nargs: 2, run: (*App).postEdit},
		"post-delete":    {usage: "post-delete <id>", path: idPath("/posts/", "/delete"), nargs: 1, run: (*App).postDelete},
		"comment":        {usage: "comment <postId> <text>", path: idPath("/posts/", "/comment"), nargs: 2, run: (*App).comment},
		"comment-delete": {usage: "comment-delete <id>", path: idPath("/comments/", "/delete"), nargs: 1, run: (*App).commentDelete},
		"profile":        {usage: "profile [--avatar <file>] [name]", path: fixed("/profile"), run: (*App).profile},
		"user":           {usage: "user <id>", path: idPath("/users/", ""), nargs: 1, run: (*App).user},
	}
}

var commandOrder = []string{
	"register", "login", "logout", "whoami",
	"posts", "post", "post-new", "post-edit", "post-delete",
	"comment", "comment-delete", "profile", "user",
}

// idPath は args[0] を ID として prefix と suffix の間に埋めたパスを返します。
func idPath(prefix, suffix string) func([]string) string {
	return func(args []string) string {
		return prefix + args[0] + suffix
	}
}

// App はコマンドを API 呼び出しに変換します。
type App struct {
	client *api.Client
	nav    *guard.Navigator
	in     *bufio.Reader
	out    io.Writer
}

// NewApp は App を作成します。
func NewApp(client *api.Client, nav *guard.Navigator, in io.Reader, out io.Writer) *App {
	return &App{client: client, nav: nav, in: bufio.NewReader(in), out: out}
}

// Run は args[0] のコマンドを実行します。
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "help" {
		a.printUsage()
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		a.printUsage()
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}
	rest := args[1:]
	if len(rest) < cmd.nargs {
		return fmt.Errorf("%w: %s", ErrUsage, cmd.usage)
	}

	if cmd.path != nil {
		requested := cmd.path(rest)
		if d := a.nav.Go(requested); !d.Allowed {
			return &RedirectError{Requested: requested, To: d.Redirect}
		}
	}

	forced := len(a.nav.Forced())
	err := cmd.run(a, ctx, rest)
	if len(a.nav.Forced()) > forced {
		fmt.Fprintln(a.out, "セッションの有効期限が切れました。もう一度ログインしてください。")
	}
	return err
}

func (a *App) printUsage() {
	fmt.Fprintln(a.out, "usage: inkpost <command> [args]")
	for _, n := range commandOrder {
		fmt.Fprintf(a.out, "  %s\n", commands[n].usage)
	}
}

func (a *App) register(ctx context.Context, _ []string) error {
	name, err := prompt(a.in, a.out, "Name")
	if err != nil {
		return err
	}
	email, err := prompt(a.in, a.out, "Email")
	if err != nil {
		return err
	}
	password, err := promptPassword(a.in, a.out, "Password")
	if err != nil {
		return err
	}
	confirm, err := promptPassword(a.in, a.out, "Confirm password")
	if err != nil {
		return err
	}

	me, err := a.client.Register(ctx, name, email, password, confirm)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "登録しました: %s (@%s)\n", me.Name, me.Handle)
	a.afterLogin()
	return nil
}

func (a *App) login(ctx context.Context, _ []string) error {
	email, err := prompt(a.in, a.out, "Email")
	if err != nil {
		return err
	}
	password, err := promptPassword(a.in, a.out, "Password")
	if err != nil {
		return err
	}

	me, err := a.client.Login(ctx, email, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "ログインしました: %s (@%s)\n", me.Name, me.Handle)
	a.afterLogin()
	return nil
}

func (a *App) afterLogin() {
	if next := a.nav.ReturnPath(); next != guard.HomePath {
		fmt.Fprintf(a.out, "続きは %s から\n", next)
	}
}

func (a *App) logout(context.Context, []string) error {
	if err := a.client.Logout(); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "ログアウトしました")
	return nil
}

func (a *App) whoami(ctx context.Context, _ []string) error {
	me, err := a.client.Me(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s (@%s) <%s>\n", me.Name, me.Handle, me.Email)
	return nil
}

func (a *App) posts(ctx context.Context, args []string) error {
	page, err := a.client.ListPosts(ctx, strings.Join(args, " "), 0, 0)
	if err != nil {
		return err
	}
	if len(page.Posts) == 0 {
		fmt.Fprintln(a.out, "投稿はありません")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, p := range page.Posts {
		fmt.Fprintf(tw, "%s\t%s\t@%s\n", p.ID, p.Title, p.Author.Handle)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d / %d ページ（全 %d 件）\n", page.CurrentPage, page.TotalPages, page.TotalPosts)
	return nil
}

func (a *App) post(ctx context.Context, args []string) error {
	detail, err := a.client.GetPost(ctx, args[0])
	if err != nil {
		return err
	}
	p := detail.Post
	fmt.Fprintf(a.out, "%s\n@%s %s\n\n%s\n", p.Title, p.Author.Handle, p.CreatedAt.Format("2006-01-02 15:04"), p.Content)
	if len(detail.Comments) > 0 {
		fmt.Fprintf(a.out, "\nコメント (%d)\n", len(detail.Comments))
		for _, c := range detail.Comments {
			fmt.Fprintf(a.out, "- @%s: %s\n", c.Author.Handle, c.Content)
		}
	}
	return nil
}

func (a *App) postNew(ctx context.Context, args []string) error {
	p, err := a.client.CreatePost(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "投稿しました: %s\n", p.ID)
	return nil
}

// postEdit はタイトルを置き換えます。content を省略した場合は本文を変えません。
func (a *App) postEdit(ctx context.Context, args []string) error {
	title := args[1]
	var content *string
	if len(args) > 2 {
		c := strings.Join(args[2:], " ")
		content = &c
	}
	p, err := a.client.UpdatePost(ctx, args[0], &title, content)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "投稿を更新しました: %s\n", p.Title)
	return nil
}

func (a *App) postDelete(ctx context.Context, args []string) error {
	if err := a.client.DeletePost(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "投稿を削除しました")
	return nil
}

func (a *App) comment(ctx context.Context, args []string) error {
	c, err := a.client.AddComment(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "コメントしました: %s\n", c.ID)
	return nil
}

func (a *App) commentDelete(ctx context.Context, args []string) error {
	if err := a.client.DeleteComment(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "コメントを削除しました")
	return nil
}

func (a *App) profile(ctx context.Context, args []string) error {
	if len(args) > 0 && args[0] == "--avatar" {
		if len(args) < 2 {
			return fmt.Errorf("%w: %s", ErrUsage, commands["profile"].usage)
		}
		return a.uploadAvatar(ctx, args[1], args[2:])
	}
	if len(args) > 0 {
		name := strings.Join(args, " ")
		p, err := a.client.UpdateProfile(ctx, &name, "", nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "名前を %s に変更しました\n", p.Name)
		return nil
	}
	p, err := a.client.Profile(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s (@%s) <%s>\n", p.Name, p.Handle, p.Email)
	if p.Avatar != "" {
		fmt.Fprintf(a.out, "avatar: %s\n", p.Avatar)
	}
	return nil
}

func (a *App) uploadAvatar(ctx context.Context, file string, nameArgs []string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open avatar: %w", err)
	}
	defer f.Close()

	var name *string
	if len(nameArgs) > 0 {
		n := strings.Join(nameArgs, " ")
		name = &n
	}
	p, err := a.client.UpdateProfile(ctx, name, filepath.Base(file), f)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "アバターを更新しました: %s\n", p.Avatar)
	if p.CleanupJobID != "" {
		fmt.Fprintf(a.out, "古い画像の削除ジョブ: %s\n", p.CleanupJobID)
	}
	return nil
}

func (a *App) user(ctx context.Context, args []string) error {
	u, err := a.client.User(ctx, args[0])
	if err != nil {
		return err
	}
	items, err := a.client.UserPosts(ctx, u.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s (@%s)\n", u.Name, u.Handle)
	if len(items) == 0 {
		fmt.Fprintln(a.out, "投稿はありません")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, p := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.Title, p.CreatedAt.Format("2006-01-02"))
	}
	return tw.Flush()
}
