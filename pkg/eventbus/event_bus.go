package eventbus

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/registrar/pkg/serrors"
)

// EventBus delivers events synchronously to handlers of the shape
// func(context.Context, E) error, where the published value is assignable to E.
// Handlers run in subscription order on the caller's goroutine, so they share
// the caller's transaction when ctx carries one.
type EventBus interface {
	Publish(ctx context.Context, event any) error
	Subscribe(handler any)
	Unsubscribe(handler any)
	Clear()
	SubscribersCount() int
}

var (
	ErrNoSubscribers  = serrors.NewError("EVENTBUS_NO_SUBSCRIBERS", "no matching subscribers", "")
	ErrInvalidHandler = serrors.NewError("EVENTBUS_INVALID_HANDLER", "invalid handler signature", "")
)

var (
	ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType = reflect.TypeOf((*error)(nil)).Elem()
)

type subscriber struct {
	fn        reflect.Value
	eventType reflect.Type
	id        uintptr
}

type publisherImpl struct {
	mu          sync.RWMutex
	log         *logrus.Entry
	subscribers []subscriber
}

func NewEventPublisher(log *logrus.Entry) EventBus {
	return &publisherImpl{log: log}
}

func validateHandler(handler any) (reflect.Type, error) {
	t := reflect.TypeOf(handler)
	if t == nil || t.Kind() != reflect.Func {
		return nil, fmt.Errorf("%w: handler must be a function", ErrInvalidHandler)
	}
	if t.NumIn() != 2 || t.In(0) != ctxType {
		return nil, fmt.Errorf("%w: %s must accept (context.Context, event)", ErrInvalidHandler, t)
	}
	if t.NumOut() != 1 || t.Out(0) != errType {
		return nil, fmt.Errorf("%w: %s must return error", ErrInvalidHandler, t)
	}
	return t.In(1), nil
}

// Matches reports whether handler would receive event.
func Matches(handler any, event any) bool {
	eventType, err := validateHandler(handler)
	if err != nil || event == nil {
		return false
	}
	return accepts(eventType, reflect.TypeOf(event))
}

func accepts(param, arg reflect.Type) bool {
	if param.Kind() == reflect.Interface {
		return arg.Implements(param)
	}
	return arg.AssignableTo(param)
}

// Subscribe panics on a malformed handler: that is a wiring bug.
func (p *publisherImpl) Subscribe(handler any) {
	eventType, err := validateHandler(handler)
	if err != nil {
		panic(err)
	}
	v := reflect.ValueOf(handler)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, subscriber{fn: v, eventType: eventType, id: v.Pointer()})
}

func (p *publisherImpl) Unsubscribe(handler any) {
	v := reflect.ValueOf(handler)
	if v.Kind() != reflect.Func {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, s := range p.subscribers {
		if s.id == v.Pointer() {
			p.subscribers = append(p.subscribers[:i], p.subscribers[i+1:]...)
			return
		}
	}
}

func (p *publisherImpl) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = nil
}

func (p *publisherImpl) SubscribersCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscribers)
}

// Publish returns ErrNoSubscribers when nothing matched, otherwise the joined
// handler errors. A panicking handler is reported as an error and does not
// stop later handlers.
func (p *publisherImpl) Publish(ctx context.Context, event any) error {
	if event == nil {
		return fmt.Errorf("%w: nil event", ErrNoSubscribers)
	}
	argType := reflect.TypeOf(event)

	p.mu.RLock()
	matched := make([]subscriber, 0, len(p.subscribers))
	for _, s := range p.subscribers {
		if accepts(s.eventType, argType) {
			matched = append(matched, s)
		}
	}
	p.mu.RUnlock()

	if len(matched) == 0 {
		if p.log != nil {
			p.log.WithField("event", argType.String()).Warn("eventbus: no matching subscribers")
		}
		return ErrNoSubscribers
	}

	in := []reflect.Value{reflect.ValueOf(ctx), reflect.ValueOf(event)}
	var errs []error
	for _, s := range matched {
		if err := p.call(s, in, argType); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *publisherImpl) call(s subscriber, in []reflect.Value, argType reflect.Type) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("eventbus: handler %s panicked: %v", s.fn.Type(), r)
			if p.log != nil {
				p.log.WithField("event", argType.String()).Error(err.Error())
			}
		}
	}()
	out := s.fn.Call(in)
	if res := out[0]; !res.IsNil() {
		return res.Interface().(error)
	}
	return nil
}
