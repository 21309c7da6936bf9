package dispatcher

import (
	"context"
	"fmt"
	"time"

	apperrors "template-service/internal/common/errors"
	"template-service/internal/transfer"
)

// threadUnit runs its job on a goroutine. The payload is transferred in
// and the result transferred out, so the job never shares memory with its
// caller. A goroutine cannot be killed: on timeout it is abandoned with a
// cancelled context.
type threadUnit struct {
	lifecycle
	id      string
	tasks   *Registry
	timeout time.Duration
}

func newThreadUnit(id string, tasks *Registry, timeout time.Duration) *threadUnit {
	return &threadUnit{id: id, tasks: tasks, timeout: timeout}
}

func (u *threadUnit) ID() string { return u.id }

func (u *threadUnit) Run(ctx context.Context, name string, payload map[string]any) (*Result, error) {
	if err := u.transition(StateRunning); err != nil {
		return nil, err
	}
	res, err := u.run(ctx, name, payload)
	u.finish(err)
	return res, err
}

func (u *threadUnit) run(ctx context.Context, name string, payload map[string]any) (*Result, error) {
	task, err := u.tasks.Lookup(name)
	if err != nil {
		return nil, err
	}
	owned, err := transfer.Copy(payload)
	if err != nil {
		return nil, apperrors.TransferError("transfer payload into unit", err)
	}
	in, _ := owned.(map[string]any)

	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: apperrors.UnitFaultError(fmt.Sprintf("unit %s panicked: %v", u.id, r), nil)}
			}
		}()
		v, err := task(ctx, in)
		if err == nil {
			if v, err = transfer.Copy(v, transfer.SkipCallables()); err != nil {
				err = apperrors.TransferError("transfer result out of unit", err)
			}
		}
		res, err := Settle(v, err)
		done <- outcome{res: res, err: err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		return nil, contextError(ctx, u.id)
	}
}

func (u *threadUnit) Terminate() error {
	u.terminate()
	return nil
}
