package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gci-tools/reportes-console/internal/admin"
	"github.com/gci-tools/reportes-console/internal/assign"
	"github.com/gci-tools/reportes-console/internal/catalog"
	"github.com/gci-tools/reportes-console/internal/config"
	"github.com/gci-tools/reportes-console/internal/credstore"
	"github.com/gci-tools/reportes-console/internal/gateway"
	"github.com/gci-tools/reportes-console/internal/health"
	"github.com/gci-tools/reportes-console/internal/jobs"
	"github.com/gci-tools/reportes-console/internal/observability"
	"github.com/gci-tools/reportes-console/internal/pkg/logger"
	"github.com/gci-tools/reportes-console/internal/session"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	app, shutdown, err := bootstrap()
	if err != nil {
		fatalf("startup failed: %v", err)
	}
	defer shutdown()

	ctx := context.Background()
	switch os.Args[1] {
	case "login":
		runLogin(ctx, app, os.Args[2:])
	case "logout":
		runLogout(app)
	case "whoami":
		runWhoami(ctx, app)
	case "change-password":
		runChangePassword(ctx, app, os.Args[2:])
	case "health":
		runHealth(ctx, app, os.Args[2:])
	case "reportes":
		runReportes(ctx, app)
	case "archivos":
		runArchivos(ctx, app, os.Args[2:])
	case "submit":
		runSubmit(ctx, app, os.Args[2:])
	case "status":
		runStatus(ctx, app, os.Args[2:])
	case "eventos":
		runEventos(ctx, app, os.Args[2:])
	case "mis":
		runMis(ctx, app, os.Args[2:])
	case "watch":
		runWatch(app, os.Args[2:])
	case "equipos":
		runEquipos(ctx, app, os.Args[2:])
	case "admin":
		runAdmin(ctx, app, os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: reportes <command> [...]

session:
  login --user U [--password P]     authenticate and store the token
  logout                            drop the stored token
  whoami                            show the current identity
  change-password                   change the account password

reports and jobs:
  reportes                          list reports you can submit
  archivos --reporte CODE           list available input files
  submit --reporte CODE [--input F] [--params JSON] [--follow]
  status --id REQ_...               show one job
  eventos --id REQ_...              show a job's event timeline
  mis --usuario U [--estado E] [--limit N]
  watch --usuario U [--id REQ_...]  poll jobs until interrupted

administration:
  equipos (--usuario N | --reporte N) [--list | --set 1,2 | --add N | --remove N]
  admin reportes|carpetas|usuarios|equipos ...

service:
  health [--wait] [--timeout 60]`)
}

type app struct {
	cfg     config.Config
	log     *logger.Logger
	creds   *credstore.Store
	gw      *gateway.Gateway
	sess    *session.Session
	catalog *catalog.Client
	tracker *jobs.Tracker
	admin   *admin.Client
	health  *health.Client
}

func bootstrap() (*app, func(), error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(filepath.Join(dir, "config.yaml"))
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, nil, err
	}
	traceShutdown := observability.Setup(context.Background(), log, cfg.Trace)

	creds, err := credstore.New(dir)
	if err != nil {
		return nil, nil, err
	}
	gw, err := gateway.New(log, gateway.Config{BaseURL: cfg.BaseURL, Timeout: cfg.Timeout}, creds)
	if err != nil {
		return nil, nil, err
	}
	sess, err := session.New(log, gw, creds)
	if err != nil {
		return nil, nil, err
	}
	sess.OnInvalidated(func(detail string) {
		fmt.Fprintf(os.Stderr, "session ended: %s\n", detail)
	})
	cat, err := catalog.New(log, gw)
	if err != nil {
		return nil, nil, err
	}
	tracker, err := jobs.NewTracker(log, gw)
	if err != nil {
		return nil, nil, err
	}
	adm, err := admin.New(log, gw)
	if err != nil {
		return nil, nil, err
	}
	hc, err := health.New(log, gw)
	if err != nil {
		return nil, nil, err
	}
	a := &app{cfg: cfg, log: log, creds: creds, gw: gw, sess: sess, catalog: cat, tracker: tracker, admin: adm, health: hc}
	shutdown := func() {
		_ = traceShutdown(context.Background())
		log.Sync()
	}
	return a, shutdown, nil
}

// ---- session commands ----

func runLogin(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	user := fs.String("user", "", "username")
	password := fs.String("password", "", "password (prompted when omitted)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*user) == "" {
		fatalf("--user is required")
	}
	pw := *password
	if pw == "" {
		pw = os.Getenv("REPORTES_PASSWORD")
	}
	if pw == "" {
		fmt.Fprint(os.Stderr, "password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			fatalf("read password: %v", err)
		}
		pw = strings.TrimRight(line, "\r\n")
	}
	id, err := a.sess.Login(ctx, *user, pw)
	if err != nil {
		fatalf("login failed: %v", err)
	}
	fmt.Printf("logged in as %s (roles: %s)\n", id.Username, strings.Join(id.Roles, ", "))
}

func runLogout(a *app) {
	if err := a.sess.Logout(); err != nil {
		fatalf("logout failed: %v", err)
	}
	fmt.Println("logged out")
}

func runWhoami(ctx context.Context, a *app) {
	id, err := a.sess.Bootstrap(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	if id == nil {
		fmt.Println("not logged in")
		return
	}
	fmt.Printf("%s (roles: %s)\n", id.Username, strings.Join(id.Roles, ", "))
	if exp, ok := a.sess.TokenExpiry(); ok {
		fmt.Printf("token expires %s\n", exp.Local().Format(time.RFC1123))
	}
}

func runChangePassword(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("change-password", flag.ExitOnError)
	current := fs.String("current", "", "current password")
	next := fs.String("new", "", "new password (min 8 chars)")
	_ = fs.Parse(args)
	if err := a.sess.ChangePassword(ctx, *current, *next); err != nil {
		fatalf("%v", err)
	}
	fmt.Println("password updated")
}

func runHealth(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	wait := fs.Bool("wait", false, "retry until the service answers")
	timeoutSecs := fs.Int("timeout", 60, "wait deadline in seconds")
	_ = fs.Parse(args)

	var (
		st  *health.Status
		err error
	)
	if *wait {
		st, err = a.health.Wait(ctx, time.Duration(*timeoutSecs)*time.Second)
	} else {
		st, err = a.health.Check(ctx)
	}
	if err != nil {
		fatalf("health check failed: %v", err)
	}
	fmt.Printf("%s: %s (%s)\n", st.Service, st.Status, st.UTCTime)
}

// ---- report/job commands ----

func runReportes(ctx context.Context, a *app) {
	reports, err := a.catalog.ListReports(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	for _, r := range reports {
		needsFile := ""
		if r.RequiresInputFile {
			needsFile = fmt.Sprintf("  [input: %s]", r.AllowedTypes)
		}
		fmt.Printf("%-20s %s%s\n", r.Code, r.Name, needsFile)
	}
}

func runArchivos(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("archivos", flag.ExitOnError)
	code := fs.String("reporte", "", "report code")
	max := fs.Int("max", 200, "max files")
	_ = fs.Parse(args)
	files, err := a.catalog.ListInputFiles(ctx, *code, *max)
	if err != nil {
		fatalf("%v", err)
	}
	for _, f := range files.Files {
		fmt.Println(f)
	}
}

func runSubmit(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	code := fs.String("reporte", "", "report code")
	input := fs.String("input", "", "input file path (when the report requires one)")
	paramsText := fs.String("params", "", "parameters as a JSON object")
	maxAttempts := fs.Int("max-intentos", 2, "max execution attempts")
	follow := fs.Bool("follow", false, "poll the job until it finishes")
	_ = fs.Parse(args)

	params, err := jobs.ParseParameters(*paramsText)
	if err != nil {
		fatalf("%v", err)
	}
	rec, err := a.tracker.Submit(ctx, jobs.Request{
		ReportCode:  *code,
		InputPath:   *input,
		Parameters:  params,
		MaxAttempts: *maxAttempts,
	})
	if err != nil {
		fatalf("submit failed: %v", err)
	}
	fmt.Printf("submitted %s (%s)\n", rec.RequestID, rec.State)
	if *follow {
		followObserved(a)
	}
}

func runStatus(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	id := fs.String("id", "", "request id")
	_ = fs.Parse(args)
	if strings.TrimSpace(*id) == "" {
		fatalf("--id is required")
	}
	a.tracker.Observe(*id)
	rec, _, err := a.tracker.RefreshObserved(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	printRecord(rec)
}

func runEventos(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("eventos", flag.ExitOnError)
	id := fs.String("id", "", "request id")
	_ = fs.Parse(args)
	if strings.TrimSpace(*id) == "" {
		fatalf("--id is required")
	}
	a.tracker.Observe(*id)
	_, events, err := a.tracker.RefreshObserved(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	for _, ev := range events {
		fmt.Printf("%s  %-10s %-8s %s\n", ev.CreatedAt.Local().Format("2006-01-02 15:04:05"), ev.Kind, ev.Origin, ev.Detail)
	}
}

func runMis(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("mis", flag.ExitOnError)
	owner := fs.String("usuario", "", "owner username")
	estado := fs.String("estado", "", "narrow the listing to one state")
	limit := fs.Int("limit", 100, "max records fetched before filtering")
	_ = fs.Parse(args)
	records, err := a.tracker.ListForOwner(ctx, *owner, *estado, *limit)
	if err != nil {
		fatalf("%v", err)
	}
	for _, r := range records {
		fmt.Printf("%-32s %-12s %3d%%  %s\n", r.RequestID, r.State, jobs.DisplayProgress(&r), r.ReportCode)
	}
}

func runWatch(a *app, args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	owner := fs.String("usuario", "", "owner username")
	estado := fs.String("estado", "", "narrow the listing to one state")
	limit := fs.Int("limit", 100, "max records fetched before filtering")
	id := fs.String("id", "", "request id to observe")
	_ = fs.Parse(args)
	if strings.TrimSpace(*owner) == "" && strings.TrimSpace(*id) == "" {
		fatalf("--usuario or --id is required")
	}
	if *id != "" {
		a.tracker.Observe(*id)
	}

	poller := jobs.NewPoller(a.log, a.tracker, a.cfg.PollInterval,
		func(records []jobs.Record, rec *jobs.Record, events []jobs.Event) {
			if len(records) > 0 {
				fmt.Printf("-- %s --\n", time.Now().Format("15:04:05"))
				for _, r := range records {
					fmt.Printf("%-32s %-12s %3d%%  %s\n", r.RequestID, r.State, jobs.DisplayProgress(&r), r.ReportCode)
				}
			}
			if rec != nil {
				printRecord(rec)
			}
		},
		func(err error) {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		})
	poller.SetQuery(*owner, *estado, *limit)
	poller.Enable(*owner)
	defer poller.Disable()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	fmt.Fprintln(os.Stderr, "stopped")
}

// followObserved polls the just-submitted job until a terminal state.
// Overlapping ticks can both deliver a terminal record, so the done channel
// is closed through a sync.Once.
func followObserved(a *app) {
	done := make(chan struct{})
	var once sync.Once
	poller := jobs.NewPoller(a.log, a.tracker, a.cfg.PollInterval,
		func(_ []jobs.Record, rec *jobs.Record, _ []jobs.Event) {
			if rec == nil {
				return
			}
			fmt.Printf("%s %3d%%  %s\n", rec.State, jobs.DisplayProgress(rec), rec.StatusMessage)
			if jobs.IsTerminal(rec.State) {
				once.Do(func() { close(done) })
			}
		},
		func(err error) {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		})
	poller.Enable("")
	defer poller.Disable()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case <-done:
	case <-sig:
	}
}

func printRecord(r *jobs.Record) {
	if r == nil {
		fmt.Println("no observed job")
		return
	}
	fmt.Printf("id:        %s\nreporte:   %s\nusuario:   %s\nestado:    %s\nprogreso:  %d%%\nmensaje:   %s\n",
		r.RequestID, r.ReportCode, r.User, r.State, jobs.DisplayProgress(r), r.StatusMessage)
	if r.OutputPath != "" {
		fmt.Printf("output:    %s\n", r.OutputPath)
	}
	if r.ErrorDetail != "" {
		fmt.Printf("error:     %s\n", r.ErrorDetail)
	}
}

// ---- assignment commands ----

func runEquipos(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("equipos", flag.ExitOnError)
	userID := fs.Int("usuario", 0, "user id")
	reportID := fs.Int("reporte", 0, "report id")
	set := fs.String("set", "", "replace assignments with a comma-separated id list")
	add := fs.Int("add", 0, "add one team id")
	remove := fs.Int("remove", 0, "remove one team id")
	filter := fs.String("filter", "", "narrow the candidate listing by name")
	_ = fs.Parse(args)

	kind := assign.OwnerUser
	ownerID := *userID
	if *reportID > 0 {
		kind = assign.OwnerReport
		ownerID = *reportID
	}
	if ownerID <= 0 {
		fatalf("--usuario or --reporte is required")
	}

	sync, err := assign.New(a.log, a.gw, kind)
	if err != nil {
		fatalf("%v", err)
	}
	if _, err := sync.LoadCandidates(ctx); err != nil {
		fatalf("%v", err)
	}
	if err := sync.SelectOwner(ctx, ownerID); err != nil {
		fatalf("%v", err)
	}

	mutated := false
	if *set != "" {
		for _, id := range sync.WorkingSet() {
			sync.Toggle(id, false)
		}
		for _, part := range strings.Split(*set, ",") {
			id, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || id <= 0 {
				fatalf("invalid team id %q", part)
			}
			sync.Toggle(id, true)
		}
		mutated = true
	}
	if *add > 0 {
		sync.Toggle(*add, true)
		mutated = true
	}
	if *remove > 0 {
		sync.Toggle(*remove, false)
		mutated = true
	}
	if mutated {
		if err := sync.Save(ctx); err != nil {
			fatalf("save failed: %v", err)
		}
		fmt.Println("assignments updated")
	}

	sync.Filter(*filter)
	selected := map[int]bool{}
	for _, id := range sync.WorkingSet() {
		selected[id] = true
	}
	for _, c := range sync.VisibleCandidates() {
		mark := " "
		if selected[c.ID] {
			mark = "x"
		}
		fmt.Printf("[%s] %4d  %s\n", mark, c.ID, c.Name)
	}
}

// ---- admin commands ----

func runAdmin(ctx context.Context, a *app, args []string) {
	if len(args) < 1 {
		fatalf("usage: reportes admin <reportes|carpetas|usuarios|equipos> ...")
	}
	switch args[0] {
	case "reportes":
		runAdminReportes(ctx, a, args[1:])
	case "carpetas":
		runAdminCarpetas(ctx, a, args[1:])
	case "usuarios":
		runAdminUsuarios(ctx, a, args[1:])
	case "equipos":
		runAdminEquipos(ctx, a, args[1:])
	default:
		fatalf("usage: reportes admin <reportes|carpetas|usuarios|equipos> ...")
	}
}

func runAdminReportes(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("admin reportes", flag.ExitOnError)
	codigo := fs.String("codigo", "", "code filter (list) or new code (create)")
	nombre := fs.String("nombre", "", "report name")
	comando := fs.String("comando", "", "worker command")
	output := fs.String("output", "", "output base path")
	tipos := fs.String("tipos", "", "allowed input extensions, e.g. csv;xlsx")
	requiereInput := fs.Bool("requiere-input", false, "report needs an input file")
	id := fs.Int("id", 0, "report id (update/deactivate)")
	page := fs.Int("page", 1, "page")
	pageSize := fs.Int("page-size", 20, "page size")
	create := fs.Bool("create", false, "create a report")
	deactivate := fs.Bool("deactivate", false, "deactivate a report")
	activo := fs.Int("activo", -1, "set active flag (0/1) on update")
	_ = fs.Parse(args)

	switch {
	case *create:
		req := 0
		if *requiereInput {
			req = 1
		}
		rep, err := a.admin.CreateReport(ctx, admin.ReportCreate{
			Code: *codigo, Name: *nombre, RequiresInputFile: req,
			AllowedTypes: *tipos, Active: 1, Command: *comando, OutputBasePath: *output,
		})
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("created report %d (%s)\n", rep.ID, rep.Code)
	case *deactivate:
		if err := a.admin.DeactivateReport(ctx, *id); err != nil {
			fatalf("%v", err)
		}
		fmt.Println("report deactivated")
	case *id > 0:
		upd := admin.ReportUpdate{}
		if *codigo != "" {
			upd.Code = codigo
		}
		if *nombre != "" {
			upd.Name = nombre
		}
		if *comando != "" {
			upd.Command = comando
		}
		if *output != "" {
			upd.OutputBasePath = output
		}
		if *tipos != "" {
			upd.AllowedTypes = tipos
		}
		if *activo == 0 || *activo == 1 {
			upd.Active = activo
		}
		rep, err := a.admin.UpdateReport(ctx, *id, upd)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("updated report %d (%s)\n", rep.ID, rep.Code)
	default:
		pageOut, err := a.admin.ListReports(ctx, *codigo, *page, *pageSize)
		if err != nil {
			fatalf("%v", err)
		}
		for _, r := range pageOut.Items {
			fmt.Printf("%4d  %-20s %-30s activo=%d\n", r.ID, r.Code, r.Name, r.Active)
		}
		fmt.Printf("page %d/%d (%d total)\n", pageOut.Page, pageOut.TotalPages, pageOut.Total)
	}
}

func runAdminCarpetas(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("admin carpetas", flag.ExitOnError)
	reporte := fs.String("reporte", "", "report code")
	ruta := fs.String("ruta", "", "base path to add")
	id := fs.Int("id", 0, "folder id (update)")
	activo := fs.Int("activo", -1, "set active flag (0/1)")
	_ = fs.Parse(args)

	switch {
	case *ruta != "" && *id == 0:
		f, err := a.admin.AddFolder(ctx, *reporte, *ruta)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("added folder %d (%s)\n", f.ID, f.BasePath)
	case *id > 0:
		upd := admin.FolderUpdate{}
		if *ruta != "" {
			upd.BasePath = ruta
		}
		if *activo == 0 || *activo == 1 {
			upd.Active = activo
		}
		f, err := a.admin.UpdateFolder(ctx, *id, upd)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("updated folder %d (%s, activo=%d)\n", f.ID, f.BasePath, f.Active)
	default:
		folders, err := a.admin.ListFolders(ctx, *reporte)
		if err != nil {
			fatalf("%v", err)
		}
		for _, f := range folders {
			fmt.Printf("%4d  %-50s activo=%d\n", f.ID, f.BasePath, f.Active)
		}
	}
}

func runAdminUsuarios(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("admin usuarios", flag.ExitOnError)
	create := fs.String("create", "", "username to create")
	roles := fs.String("roles", "USER", "comma-separated roles for the new user")
	resetID := fs.Int("reset-password", 0, "user id to reset")
	_ = fs.Parse(args)

	switch {
	case *create != "":
		roleList := []string{}
		for _, r := range strings.Split(*roles, ",") {
			if r = strings.TrimSpace(r); r != "" {
				roleList = append(roleList, strings.ToUpper(r))
			}
		}
		u, err := a.admin.CreateUser(ctx, *create, roleList, true)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("created user %d (%s), temporary password: %s\n", u.ID, u.Username, u.TemporaryPassword)
	case *resetID > 0:
		out, err := a.admin.ResetPassword(ctx, *resetID)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s (temporary password: %s)\n", out.Detail, out.TemporaryPassword)
	default:
		users, err := a.admin.ListUsers(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
		for _, u := range users {
			fmt.Printf("%4d  %-20s activo=%d  roles=%s\n", u.ID, u.Username, u.Active, strings.Join(u.Roles, ","))
		}
	}
}

func runAdminEquipos(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("admin equipos", flag.ExitOnError)
	create := fs.String("create", "", "team name to create")
	id := fs.Int("id", 0, "team id (update)")
	nombre := fs.String("nombre", "", "new team name")
	activo := fs.Int("activo", -1, "set active flag (0/1)")
	_ = fs.Parse(args)

	switch {
	case *create != "":
		t, err := a.admin.CreateTeam(ctx, *create, true)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("created team %d (%s)\n", t.ID, t.Name)
	case *id > 0:
		var namePtr *string
		if *nombre != "" {
			namePtr = nombre
		}
		var actPtr *int
		if *activo == 0 || *activo == 1 {
			actPtr = activo
		}
		t, err := a.admin.UpdateTeam(ctx, *id, namePtr, actPtr)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("updated team %d (%s, activo=%d)\n", t.ID, t.Name, t.Active)
	default:
		teams, err := a.admin.ListTeams(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		for _, t := range teams {
			fmt.Printf("%4d  %-30s activo=%d\n", t.ID, t.Name, t.Active)
		}
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
