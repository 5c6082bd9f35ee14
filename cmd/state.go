package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/applicant-courier/internal/control"
	"github.com/xkilldash9x/applicant-courier/internal/store"
)

func newStateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print the stored run state as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDispatcher(cmd.Context(), func(ctx context.Context, d *control.Dispatcher) error {
				resp, err := call(ctx, d, control.TypeGetState, nil)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp.State)
			})
		},
	}
}

func newResetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget every messaged applicant and reset the session counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDispatcher(cmd.Context(), func(ctx context.Context, d *control.Dispatcher) error {
				resp, err := call(ctx, d, control.TypeResetSentList, nil)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp.State)
			})
		},
	}
}

// withDispatcher opens the store and runs fn with a dispatcher that has no browser attached.
func (a *app) withDispatcher(ctx context.Context, fn func(context.Context, *control.Dispatcher) error) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(ctx, control.NewDispatcher(st, nil, nil, a.logger))
}

// call dispatches one command and turns a failed response into an error.
func call(ctx context.Context, d *control.Dispatcher, typ string, payload interface{}) (control.Response, error) {
	cmd := control.Command{Type: typ}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return control.Response{}, err
		}
		cmd.Payload = raw
	}
	resp := d.Dispatch(ctx, cmd)
	if !resp.OK {
		return resp, errors.New(resp.Error)
	}
	return resp, nil
}

func dispatch(ctx context.Context, d *control.Dispatcher, typ string, payload interface{}) error {
	_, err := call(ctx, d, typ, payload)
	if err != nil {
		return fmt.Errorf("%s: %w", typ, err)
	}
	return nil
}

func printJSON(w io.Writer, v interface{}) error {
	if st, ok := v.(*store.RunState); ok && st == nil {
		return errors.New("no state returned")
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
