package viewmodel

import (
	"context"
	"errors"
	"io"

	log "github.com/sirupsen/logrus"
	"github.com/troydota/client.vote.komodohype.dev/api"
	"github.com/troydota/client.vote.komodohype.dev/session"
)

var ErrIncompleteForm = errors.New("form is incomplete")

type AuthAPI interface {
	Login(ctx context.Context, username, password string) (api.TokenResponse, error)
	Register(ctx context.Context, r api.RegisterRequest) (api.RegisterResponse, error)
}

type SignIn struct {
	api      AuthAPI
	sessions *session.Manager
	notify   Notifier
}

func NewSignIn(c AuthAPI, sessions *session.Manager, notify Notifier) *SignIn {
	return &SignIn{api: c, sessions: sessions, notify: notify}
}

// Submit logs in and stores the issued session.
func (vm *SignIn) Submit(ctx context.Context, username, password string) (session.Session, error) {
	if username == "" || password == "" {
		vm.notify.Alert(Alert{"Error", "Please fill in both username and password."})
		return session.Session{}, ErrIncompleteForm
	}

	res, err := vm.api.Login(ctx, username, password)
	if err != nil {
		log.WithField("component", "login").Errorf("login, err=%v", err)
		vm.notify.Alert(Alert{"Login Failed", "Invalid username or password."})
		return session.Session{}, err
	}

	s := session.Session{
		Token:             res.AccessToken,
		TokenType:         res.TokenType,
		ProfilePictureURL: res.ProfilePictureURL,
	}
	if err = vm.sessions.Save(ctx, s); err != nil {
		log.WithField("component", "login").Errorf("session, err=%v", err)
		vm.notify.Alert(Alert{"Error", "Failed to save authentication details."})
		return session.Session{}, err
	}
	return s, nil
}

type RegisterForm struct {
	Username       string
	Password       string
	ProfilePicture io.Reader
	FileName       string
	ContentType    string
}

type SignUp struct {
	api AuthAPI
}

func NewSignUp(c AuthAPI) *SignUp {
	return &SignUp{api: c}
}

// Submit registers the user. The returned message is meant for the screen whether or not
// err is nil.
func (vm *SignUp) Submit(ctx context.Context, f RegisterForm) (string, error) {
	if f.Username == "" || f.Password == "" || f.ProfilePicture == nil {
		return "Please fill in all fields and select a profile picture.", ErrIncompleteForm
	}

	res, err := vm.api.Register(ctx, api.RegisterRequest{
		Username:       f.Username,
		Password:       f.Password,
		ProfilePicture: f.ProfilePicture,
		FileName:       f.FileName,
		ContentType:    f.ContentType,
	})
	if err != nil {
		entry := log.WithField("component", "register")
		switch {
		case api.IsKind(err, api.KindStatus):
			entry.Errorf("server response, err=%v", err)
			if msg := api.ServerMessage(err); msg != "" {
				return msg, err
			}
			return "Registration failed.", err
		case api.IsKind(err, api.KindTransport):
			entry.Errorf("no response from server, err=%v", err)
			return "Network error. Please check your connection.", err
		default:
			entry.Errorf("unknown, err=%v", err)
			return "An unexpected error occurred.", err
		}
	}

	if res.Message == "" {
		return "Registration successful!", nil
	}
	return res.Message, nil
}
