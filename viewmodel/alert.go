package viewmodel

import (
	"sync"
)

type Alert struct {
	Title   string
	Message string
}

// Notifier shows non-blocking alerts to the user.
type Notifier interface {
	Alert(a Alert)
}

type NotifierFunc func(a Alert)

func (f NotifierFunc) Alert(a Alert) {
	f(a)
}

// Alerts collects every alert raised, in order.
type Alerts struct {
	mtx  sync.Mutex
	list []Alert
}

func (a *Alerts) Alert(al Alert) {
	a.mtx.Lock()
	a.list = append(a.list, al)
	a.mtx.Unlock()
}

func (a *Alerts) List() []Alert {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return append([]Alert(nil), a.list...)
}

// Navigator lets a view-model leave its screen.
type Navigator interface {
	Back()
}

type NavigatorFunc func()

func (f NavigatorFunc) Back() {
	f()
}

type noNavigator struct{}

func (noNavigator) Back() {}
