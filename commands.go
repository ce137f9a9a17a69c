package main

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/troydota/client.vote.komodohype.dev/api"
	"github.com/troydota/client.vote.komodohype.dev/configure"
	"github.com/troydota/client.vote.komodohype.dev/mongo"
	"github.com/troydota/client.vote.komodohype.dev/postgres"
	"github.com/troydota/client.vote.komodohype.dev/redis"
	"github.com/troydota/client.vote.komodohype.dev/render"
	"github.com/troydota/client.vote.komodohype.dev/server"
	"github.com/troydota/client.vote.komodohype.dev/session"
	"github.com/troydota/client.vote.komodohype.dev/sqlite"
	"github.com/troydota/client.vote.komodohype.dev/viewmodel"
)

var errUsage = errors.New("bad usage")

type app struct {
	cfg      configure.ClientCfg
	api      *api.Client
	sessions *session.Manager
	out      io.Writer
	errOut   io.Writer
}

func (a *app) notifier() viewmodel.Notifier {
	return viewmodel.NotifierFunc(func(al viewmodel.Alert) {
		_ = render.Alert(a.errOut, al)
	})
}

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"polls":    cmdPolls,
	"poll":     cmdPoll,
	"cast":     cmdCast,
	"login":    cmdLogin,
	"register": cmdRegister,
	"whoami":   cmdWhoami,
	"serve":    cmdServe,
}

func openStore(ctx context.Context, cfg configure.ClientCfg) (session.Store, func() error, error) {
	switch cfg.SessionBackend {
	case "memory":
		return session.NewMemoryStore(), func() error { return nil }, nil
	case "sqlite":
		s, err := sqlite.Open(ctx, cfg.SessionPath)
		if err != nil {
			return nil, nil, errors.Wrap(err, "sqlite")
		}
		return s, s.Close, nil
	case "redis":
		s, err := redis.New(ctx, cfg.RedisURI)
		if err != nil {
			return nil, nil, errors.Wrap(err, "redis")
		}
		return s, s.Close, nil
	case "mongo":
		s, err := mongo.New(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, errors.Wrap(err, "mongo")
		}
		return s, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return s.Close(ctx)
		}, nil
	case "postgres":
		s, err := postgres.New(ctx, cfg.PostgresURI)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return nil, nil, errors.Errorf("unknown session backend %q", cfg.SessionBackend)
}

func run(ctx context.Context, cfg configure.ClientCfg, args []string, out, errOut io.Writer) int {
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprint(errOut, usage)
		return 2
	}

	c, err := api.New(cfg.APIBaseURL, api.WithRateLimit(cfg.APIRateLimit, cfg.APIRateBurst))
	if err != nil {
		log.Errorf("api, err=%v", err)
		return 1
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Errorf("session store, err=%v", err)
		return 1
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Errorf("session store, close=%v", err)
		}
	}()

	a := &app{
		cfg:      cfg,
		api:      c,
		sessions: session.NewManager(store),
		out:      out,
		errOut:   errOut,
	}

	err = cmd(ctx, a, args[1:])
	switch {
	case err == nil:
		if args[0] == "serve" {
			return cfg.ExitCode
		}
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprint(errOut, usage)
		return 2
	default:
		log.WithField("component", args[0]).Debugf("%s, err=%v", args[0], err)
		return 1
	}
}

func cmdPolls(ctx context.Context, a *app, args []string) error {
	vm := viewmodel.NewPollList(a.api, a.sessions, a.notifier())
	if len(args) > 0 {
		tab, err := viewmodel.ParseTab(args[0])
		if err != nil {
			return errors.Wrap(errUsage, err.Error())
		}
		vm.SetTab(tab)
	}
	if len(args) > 1 {
		vm.SetQuery(strings.Join(args[1:], " "))
	}

	err := vm.Activate(ctx)
	if errors.Is(err, session.ErrMissingToken) || errors.Is(err, context.Canceled) {
		return err
	}
	// a failed half is already reported; show what did load
	if rerr := render.Home(a.out, vm.State()); rerr != nil {
		return rerr
	}
	return err
}

func cmdPoll(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	vm := viewmodel.NewPollDetail(a.api, a.sessions, a.notifier(), nil, args[0])
	if err := vm.Load(ctx); err != nil {
		return err
	}
	return render.PollDetail(a.out, vm.State())
}

func cmdCast(ctx context.Context, a *app, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	vm := viewmodel.NewPollDetail(a.api, a.sessions, a.notifier(), nil, args[0])
	if err := vm.Load(ctx); err != nil {
		return err
	}
	if err := vm.Vote(ctx, args[1]); err != nil {
		return err
	}
	return render.PollDetail(a.out, vm.State())
}

func cmdLogin(ctx context.Context, a *app, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	s, err := viewmodel.NewSignIn(a.api, a.sessions, a.notifier()).Submit(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	return render.Session(a.out, s, claimsOf(s), time.Now())
}

func cmdRegister(ctx context.Context, a *app, args []string) error {
	if len(args) != 3 {
		return errUsage
	}
	f, err := os.Open(args[2])
	if err != nil {
		return errors.Wrap(err, "profile picture")
	}
	defer f.Close()

	msg, err := viewmodel.NewSignUp(a.api).Submit(ctx, viewmodel.RegisterForm{
		Username:       args[0],
		Password:       args[1],
		ProfilePicture: f,
		FileName:       filepath.Base(args[2]),
		ContentType:    mime.TypeByExtension(filepath.Ext(args[2])),
	})
	if err != nil {
		fmt.Fprintln(a.errOut, msg)
		return err
	}
	_, err = fmt.Fprintln(a.out, msg)
	return err
}

func cmdWhoami(ctx context.Context, a *app, _ []string) error {
	s, err := a.sessions.Current(ctx)
	if errors.Is(err, session.ErrMissingToken) {
		fmt.Fprintln(a.errOut, "not signed in")
		return err
	}
	if err != nil {
		return err
	}
	return render.Session(a.out, s, claimsOf(s), time.Now())
}

func claimsOf(s session.Session) *session.Claims {
	c, err := session.ParseClaims(s.Token)
	if err != nil {
		return nil
	}
	return &c
}

func cmdServe(ctx context.Context, a *app, _ []string) error {
	s, err := server.New(a.api, a.sessions)
	if err != nil {
		return err
	}
	if err = s.Start(a.cfg.ListenerNetwork, a.cfg.ListenerAddress); err != nil {
		return errors.Wrap(err, "listen")
	}
	log.Infoln("Application Started.")

	<-ctx.Done()
	start := time.Now().UnixNano()

	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.Shutdown(); err != nil {
			log.Errorf("server, shutdown=%v", err)
		}
	}()
	wg.Wait()

	log.Infof("Shutdown took, %.2fms", float64(time.Now().UnixNano()-start)/10e5)
	return nil
}
