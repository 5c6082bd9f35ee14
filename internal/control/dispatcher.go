// internal/control/dispatcher.go
package control

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/applicant-courier/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Command types understood by the dispatcher.
const (
	TypeGetState          = "GET_STATE"
	TypeStartAutomation   = "START_AUTOMATION"
	TypeStopAutomation    = "STOP_AUTOMATION"
	TypeUpdateProgress    = "UPDATE_PROGRESS"
	TypeResetSentList     = "RESET_SENT_LIST"
	TypeRunAutomation     = "RUN_AUTOMATION"
	TypeStopAutomationNow = "STOP_AUTOMATION_NOW"
	TypeCloseMessageModal = "CLOSE_MESSAGE_MODAL"
	TypeUpdateSettings    = "UPDATE_SETTINGS"
)

const msgInvalidFormat = "Invalid message format."

var (
	errBadPayload = errors.New("invalid payload")
	errNoSession  = errors.New("no browser session attached")
)

// Command is one request on the command channel.
type Command struct {
	Type    string              `json:"type"`
	Payload jsoniter.RawMessage `json:"payload,omitempty"`
}

// Response is the reply to a Command. Code is the HTTP status the server answers with.
type Response struct {
	OK    bool            `json:"ok"`
	State *store.RunState `json:"state,omitempty"`
	Error string          `json:"error,omitempty"`
	Code  int             `json:"-"`
}

type startPayload struct {
	Mode     string `json:"mode" validate:"max=16"`
	Template string `json:"template" validate:"max=4000"`
}

type progressPayload struct {
	SentCount        *int    `json:"sentCount" validate:"omitempty,gte=0"`
	Status           *string `json:"status" validate:"omitempty,max=512"`
	CurrentCandidate *string `json:"currentCandidate" validate:"omitempty,max=256"`
}

type settingsPayload struct {
	Mode          *string `json:"mode" validate:"omitempty,oneof=manual auto"`
	Template      *string `json:"template" validate:"omitempty,max=4000"`
	MaxPerSession *int    `json:"maxPerSession" validate:"omitempty,gt=0"`
}

// StateStore is the part of the store the dispatcher writes through.
type StateStore interface {
	State(ctx context.Context) (store.RunState, error)
	Patch(ctx context.Context, p store.Patch) (store.RunState, error)
	ClearAll(ctx context.Context) (store.RunState, error)
}

// Runner starts and stops the automation worker.
type Runner interface {
	Start() bool
	Stop()
}

// ModalCloser closes whatever messaging panel is open.
type ModalCloser interface {
	CloseAny(ctx context.Context) (bool, error)
}

type handlerFunc func(ctx context.Context, payload jsoniter.RawMessage) (Response, error)

// Dispatcher routes commands to state writes and engine actions.
type Dispatcher struct {
	store    StateStore
	runner   Runner
	closer   ModalCloser
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
	handlers map[string]handlerFunc
}

// NewDispatcher builds a dispatcher. runner and closer may be nil when no browser session is
// attached; the commands that need them then fail.
func NewDispatcher(st StateStore, runner Runner, closer ModalCloser, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		store:    st,
		runner:   runner,
		closer:   closer,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.Named("dispatcher"),
		now:      time.Now,
	}
	d.handlers = map[string]handlerFunc{
		TypeGetState:          d.getState,
		TypeStartAutomation:   d.startAutomation,
		TypeStopAutomation:    d.stopAutomation,
		TypeUpdateProgress:    d.updateProgress,
		TypeResetSentList:     d.resetSentList,
		TypeRunAutomation:     d.runAutomation,
		TypeStopAutomationNow: d.stopAutomationNow,
		TypeCloseMessageModal: d.closeMessageModal,
		TypeUpdateSettings:    d.updateSettings,
	}
	return d
}

// Dispatch executes cmd. It never returns a Go error; failures travel in the Response.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) Response {
	if cmd.Type == "" {
		return failure(http.StatusBadRequest, msgInvalidFormat)
	}
	h, ok := d.handlers[cmd.Type]
	if !ok {
		return failure(http.StatusBadRequest, "Unknown message type: "+cmd.Type)
	}

	d.logger.Debug("Dispatching command.", zap.String("type", cmd.Type))
	resp, err := h(ctx, cmd.Payload)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, errBadPayload) || errors.Is(err, store.ErrInvalidPatch) {
			code = http.StatusBadRequest
		} else {
			d.logger.Warn("Command failed.", zap.String("type", cmd.Type), zap.Error(err))
		}
		return failure(code, err.Error())
	}
	resp.OK = true
	resp.Code = http.StatusOK
	return resp
}

func failure(code int, msg string) Response {
	return Response{OK: false, Error: msg, Code: code}
}

func withState(st store.RunState) Response {
	return Response{State: &st}
}

// decode unmarshals and validates payload into v. An absent payload leaves v zero.
func (d *Dispatcher) decode(payload jsoniter.RawMessage, v interface{}) error {
	if len(payload) > 0 && string(payload) != "null" {
		if err := json.Unmarshal(payload, v); err != nil {
			return fmt.Errorf("%w: %v", errBadPayload, err)
		}
	}
	if err := d.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", errBadPayload, err)
	}
	return nil
}

func (d *Dispatcher) getState(ctx context.Context, _ jsoniter.RawMessage) (Response, error) {
	st, err := d.store.State(ctx)
	if err != nil {
		return Response{}, err
	}
	return withState(st), nil
}

func (d *Dispatcher) startAutomation(ctx context.Context, payload jsoniter.RawMessage) (Response, error) {
	var p startPayload
	if err := d.decode(payload, &p); err != nil {
		return Response{}, err
	}
	mode := store.ModeManual
	if p.Mode == store.ModeAuto {
		mode = store.ModeAuto
	}
	tpl := p.Template
	if tpl == "" {
		tpl = store.DefaultTemplate
	}
	st, err := d.store.Patch(ctx, store.Patch{
		Running:          store.Ptr(true),
		Status:           store.Ptr(store.StatusRunning),
		SentCount:        store.Ptr(0),
		CurrentCandidate: store.Ptr("-"),
		SessionStartAt:   store.Ptr(d.now().UnixMilli()),
		Mode:             &mode,
		Template:         &tpl,
	})
	if err != nil {
		return Response{}, err
	}
	d.logger.Info("Automation started.", zap.String("mode", mode))
	return withState(st), nil
}

func (d *Dispatcher) stopAutomation(ctx context.Context, _ jsoniter.RawMessage) (Response, error) {
	st, err := d.store.Patch(ctx, store.Stopped(store.StatusStopped))
	if err != nil {
		return Response{}, err
	}
	return withState(st), nil
}

func (d *Dispatcher) updateProgress(ctx context.Context, payload jsoniter.RawMessage) (Response, error) {
	var p progressPayload
	if err := d.decode(payload, &p); err != nil {
		return Response{}, err
	}
	st, err := d.store.Patch(ctx, store.Patch{
		SentCount:        p.SentCount,
		Status:           p.Status,
		CurrentCandidate: p.CurrentCandidate,
	})
	if err != nil {
		return Response{}, err
	}
	return withState(st), nil
}

func (d *Dispatcher) resetSentList(ctx context.Context, _ jsoniter.RawMessage) (Response, error) {
	st, err := d.store.ClearAll(ctx)
	if err != nil {
		return Response{}, err
	}
	d.logger.Info("Sent list cleared.")
	return withState(st), nil
}

func (d *Dispatcher) runAutomation(context.Context, jsoniter.RawMessage) (Response, error) {
	if d.runner == nil {
		return Response{}, errNoSession
	}
	if !d.runner.Start() {
		d.logger.Debug("Run already active.")
	}
	return Response{}, nil
}

func (d *Dispatcher) stopAutomationNow(ctx context.Context, _ jsoniter.RawMessage) (Response, error) {
	if d.runner != nil {
		d.runner.Stop()
	}
	if _, err := d.store.Patch(ctx, store.Stopped(store.StatusStopped)); err != nil {
		return Response{}, err
	}
	return Response{}, nil
}

func (d *Dispatcher) closeMessageModal(ctx context.Context, _ jsoniter.RawMessage) (Response, error) {
	if d.closer == nil {
		return Response{}, errNoSession
	}
	closed, err := d.closer.CloseAny(ctx)
	if err != nil {
		return Response{}, err
	}
	d.logger.Debug("Close requested.", zap.Bool("closed", closed))
	return Response{}, nil
}

func (d *Dispatcher) updateSettings(ctx context.Context, payload jsoniter.RawMessage) (Response, error) {
	var p settingsPayload
	if err := d.decode(payload, &p); err != nil {
		return Response{}, err
	}
	st, err := d.store.Patch(ctx, store.Patch{
		Mode:          p.Mode,
		Template:      p.Template,
		MaxPerSession: p.MaxPerSession,
	})
	if err != nil {
		return Response{}, err
	}
	return withState(st), nil
}
