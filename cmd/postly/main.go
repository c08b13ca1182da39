// Command postly browses and edits a Postly blog from the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"postly/internal/api"
	"postly/internal/config"
	"postly/internal/controller"
	"postly/internal/featureflags"
	"postly/internal/models"
	"postly/internal/notify"
	"postly/internal/observability"
	"postly/internal/querystring"
	"postly/internal/server"
	"postly/internal/session"
	"postly/internal/validation"
	"postly/internal/view"
)

const sessionTTL = 7 * 24 * time.Hour

const usage = `usage: postly [flags] <command> [args]

commands:
  signup <username> <email> <password>
  login <email> <password>
  logout
  me
  posts [-view all-posts|my-posts|liked-posts|archived-posts] [-page N] [-search text] [-query raw]
  open <postId> [-more N]
  like <postId>
  archive <postId>
  create -title T -category C -content BODY
  comment <postId> <text>
`

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	observability.InitLogging(cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "postly-cli",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSampleRatio,
	})
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Printf("Tracing shutdown error: %v", err)
		}
	}()

	app, err := newApp(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer app.close()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := server.New(cfg.MetricsAddr, app.storePinger).Run(ctx); err != nil {
				log.Printf("Ops server error: %v", err)
			}
		}()
	}

	if err := app.run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", describe(err))
		os.Exit(1)
	}
}

type app struct {
	cfg       *config.Config
	flags     *featureflags.Manager
	session   *session.Session
	client    *api.Client
	validator *validation.Validator
	// storePinger is nil for the file session store.
	storePinger server.Pinger
	closers     []func()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:       cfg,
		flags:     featureflags.NewManager(cfg.FeatureFlags),
		validator: validation.New(),
	}
	observability.NewComponentLogger("cli").Debug(ctx, "feature flags configured", map[string]interface{}{"flags": a.flags.Raw()})

	var store session.Store
	if cfg.RedisURL == "" {
		path := cfg.SessionFile
		if path == "" {
			var err error
			if path, err = session.DefaultFilePath(); err != nil {
				return nil, err
			}
		}
		store = session.NewFileStore(path)
	} else {
		rdb, err := session.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		a.storePinger = server.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		store = session.NewRedisStore(rdb, cfg.SessionNamespace, sessionTTL)
	}

	a.session = session.New(store)
	if _, err := a.session.Restore(ctx); err != nil {
		return nil, err
	}
	watchCtx, cancel := context.WithCancel(ctx)
	a.closers = append(a.closers, cancel)
	if err := a.session.WatchRemoteLogout(watchCtx); err != nil {
		return nil, err
	}

	a.client = api.NewClient(cfg.APIBaseURL, a.session,
		api.WithTimeout(cfg.RequestTimeout),
		api.WithFlags(a.flags),
		api.WithAuthFailureHandler(func(ctx context.Context) {
			if err := a.session.Logout(ctx); err != nil {
				log.Printf("Forced logout failed: %v", err)
			}
		}),
	)
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) page(query string) *controller.Controller {
	return controller.New(a.client, a.session, querystring.NewLocation(query), controller.Options{
		Debounce: a.cfg.SearchDebounce,
		Notifier: notify.NewLogNotifier(),
		Flags:    a.flags,
	})
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "signup":
		return a.signup(ctx, args)
	case "login":
		return a.login(ctx, args)
	case "logout":
		return a.logout(ctx)
	case "me":
		return a.me(ctx)
	case "posts":
		return a.posts(ctx, args)
	case "open":
		return a.open(ctx, args)
	case "like":
		return a.withPost(ctx, args, (*controller.Controller).Like)
	case "archive":
		return a.withPost(ctx, args, (*controller.Controller).Archive)
	case "create":
		return a.create(ctx, args)
	case "comment":
		return a.comment(ctx, args)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) signup(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return errors.New("signup needs <username> <email> <password>")
	}
	creds := models.Credentials{Username: args[0], Email: args[1], Password: args[2]}
	if err := a.validator.Signup(creds); err != nil {
		return err
	}
	result, err := a.client.Signup(ctx, creds)
	if err != nil {
		return err
	}
	if err := a.session.SignIn(ctx, result); err != nil {
		return err
	}
	fmt.Printf("Signed up as %s\n", result.Auth.Username)
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("login needs <email> <password>")
	}
	creds := models.Credentials{Email: args[0], Password: args[1]}
	if err := a.validator.Login(creds); err != nil {
		return err
	}
	result, err := a.client.Login(ctx, creds)
	if err != nil {
		return err
	}
	if err := a.session.SignIn(ctx, result); err != nil {
		return err
	}
	fmt.Printf("Logged in as %s\n", result.Auth.Username)
	return nil
}

func (a *app) logout(ctx context.Context) error {
	p := a.page("")
	defer p.Unmount()
	if err := p.Logout(ctx); err != nil {
		return err
	}
	fmt.Println("Logged out")
	return nil
}

func (a *app) me(ctx context.Context) error {
	if claims, err := session.ParseClaims(a.session.AccessToken()); err == nil && claims.Expired(time.Now()) {
		fmt.Println("Access token expired; it will be refreshed on the next request")
	}
	profile, err := a.client.Profile(ctx)
	if err != nil {
		return err
	}
	a.session.SetProfile(profile)
	fmt.Printf("%s <%s>\n", profile.Username, profile.Email)
	fmt.Printf("  created: %d  liked: %d  archived: %d\n",
		len(profile.CreatedBlogPosts), len(profile.LikedBlogPosts), len(profile.ArchivedBlogPosts))
	if line := formatFlags(a.flags.Snapshot(a.session.UserID())); line != "" {
		fmt.Printf("  flags: %s\n", line)
	}
	return nil
}

// formatFlags renders evaluated flags as "name=on name=off", sorted by name.
func formatFlags(flags map[string]bool) string {
	parts := make([]string, 0, len(flags))
	for _, name := range slices.Sorted(maps.Keys(flags)) {
		state := "off"
		if flags[name] {
			state = "on"
		}
		parts = append(parts, name+"="+state)
	}
	return strings.Join(parts, " ")
}

func (a *app) posts(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("posts", flag.ContinueOnError)
	viewName := fs.String("view", "", "view to show")
	pageNum := fs.Int("page", 0, "page to show")
	search := fs.String("search", "", "search query")
	raw := fs.String("query", "", "raw query string, e.g. liked-posts-page=2")
	if err := fs.Parse(args); err != nil {
		return err
	}

	p := a.page(*raw)
	defer p.Unmount()
	p.Mount(ctx)

	if *viewName != "" {
		v, ok := view.Parse(*viewName)
		if !ok {
			return fmt.Errorf("unknown view %q", *viewName)
		}
		p.SetActiveView(v)
	}
	if *pageNum != 0 {
		if err := p.SetPage(*pageNum); err != nil {
			return err
		}
	}
	if *search != "" {
		p.SetSearchQuery(*search)
	}
	p.Wait()

	if p.Landing() {
		return errors.New("session ended; log in again")
	}
	render(p.View())
	return nil
}

func (a *app) open(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("open", flag.ContinueOnError)
	more := fs.Int("more", 0, "extra comment pages to load")
	if len(args) == 0 {
		return errors.New("open needs <postId>")
	}
	id := args[0]
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	p := a.page("")
	defer p.Unmount()
	if err := p.OpenPost(ctx, id); err != nil {
		return err
	}
	for i := 0; i < *more; i++ {
		if err := p.LoadMoreComments(ctx); err != nil {
			return err
		}
	}

	th := p.Thread()
	post, _ := th.Post()
	fmt.Printf("%s\n%s | by %s | %d likes | %d views | %d comments\n\n%s\n\n",
		post.Title, post.Category, post.Author.Username, post.Likes, post.Views, th.TotalComments(), post.Content)
	for _, c := range th.Comments() {
		fmt.Printf("  [%s] %s: %s (%d likes)\n", c.ID, c.Author.Username, c.Content, c.Likes)
	}
	if th.HasMoreComments() {
		fmt.Println("  ...")
	}
	return nil
}

func (a *app) withPost(ctx context.Context, args []string, fn func(*controller.Controller, context.Context, string) error) error {
	if len(args) != 1 {
		return errors.New("need exactly one <postId>")
	}
	p := a.page("")
	defer p.Unmount()
	p.Mount(ctx)
	if err := fn(p, ctx, args[0]); err != nil {
		return err
	}
	p.Wait()
	render(p.View())
	return nil
}

func (a *app) create(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	title := fs.String("title", "", "post title")
	category := fs.String("category", "", "post category")
	content := fs.String("content", "", "post body")
	if err := fs.Parse(args); err != nil {
		return err
	}

	p := a.page("")
	defer p.Unmount()
	p.Mount(ctx)
	in := models.CreatePostInput{Title: *title, Category: *category, Content: *content}
	if err := p.CreatePost(ctx, in); err != nil {
		return err
	}
	p.Wait()
	render(p.View())
	return nil
}

func (a *app) comment(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("comment needs <postId> <text>")
	}
	p := a.page("")
	defer p.Unmount()
	if err := p.OpenPost(ctx, args[0]); err != nil {
		return err
	}
	if err := p.CreateComment(ctx, models.CreateCommentInput{Content: strings.Join(args[1:], " ")}); err != nil {
		return err
	}
	fmt.Printf("%d comments\n", p.Store().TotalCommentCount())
	return nil
}

func render(r controller.Render) {
	fmt.Printf("%s (page %d of %d)\n%s\n%s\n\n", r.Title, r.Page, r.TotalPages, r.Description, r.Count)
	for _, p := range r.Posts {
		liked := " "
		if p.IsLikedByCurrentUser {
			liked = "*"
		}
		fmt.Printf("%s [%s] %s | %s | %d likes %d comments %d views\n",
			liked, p.ID, p.Title, p.Author.Username, p.Likes, p.Comments, p.Views)
	}
	if r.Err != nil {
		fmt.Printf("\n(last fetch failed: %s)\n", describe(r.Err))
	}
}

func describe(err error) string {
	appErr := models.AsAppError(err)
	if len(appErr.Fields) == 0 {
		return appErr.Message
	}
	parts := make([]string, 0, len(appErr.Fields))
	for _, f := range appErr.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return strings.Join(parts, "; ")
}
