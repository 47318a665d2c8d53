package bridge

import (
	"context"
	"encoding/json"
	"fmt"
)

// Method names accepted by Handle
const (
	MethodStartMonitoring = "startBackgroundService"
	MethodStopMonitoring  = "stopBackgroundService"
	MethodSetAutoStart    = "setAutoStart"
	MethodGetAutoStart    = "isAutoStartEnabled"
	MethodRaiseAlert      = "raiseAlert"
	MethodClearAlert      = "clearAlert"
	MethodStatus          = "status"
)

// Request is a bridge call received from an outward transport.
type Request struct {
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response answers a Request. Reason and Message are set only when OK is false.
type Response struct {
	ID      string `json:"id,omitempty"`
	OK      bool   `json:"ok"`
	Result  any    `json:"result,omitempty"`
	Reason  Reason `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

type startParams struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

type autoStartParams struct {
	Enabled *bool `json:"enabled"`
}

// Handle dispatches req by method name. It never panics on malformed input;
// every failure is reported in the Response.
func (g *Gateway) Handle(ctx context.Context, req Request) Response {
	result, err := g.dispatch(ctx, req)
	if err != nil {
		return Response{ID: req.ID, Reason: ReasonOf(err), Message: err.Error()}
	}
	return Response{ID: req.ID, OK: true, Result: result}
}

func (g *Gateway) dispatch(ctx context.Context, req Request) (any, error) {
	switch req.Method {
	case MethodStartMonitoring:
		var p startParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return nil, g.StartMonitoring(ctx, p.Address, p.Name)

	case MethodStopMonitoring:
		return nil, g.StopMonitoring(ctx)

	case MethodSetAutoStart:
		var p autoStartParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		if p.Enabled == nil {
			return nil, newFailure(ReasonInvalidArgument, "set auto-start", fmt.Errorf("missing \"enabled\" parameter"))
		}
		return nil, g.SetAutoStart(ctx, *p.Enabled)

	case MethodGetAutoStart:
		enabled, err := g.GetAutoStart(ctx)
		if err != nil {
			return nil, err
		}
		return enabled, nil

	case MethodRaiseAlert:
		return nil, g.RaiseAlert(ctx)

	case MethodClearAlert:
		return nil, g.ClearAlert(ctx)

	case MethodStatus:
		status, err := g.Status(ctx)
		if err != nil {
			return nil, err
		}
		return status, nil

	default:
		return nil, newFailure(ReasonInvalidArgument, "dispatch", fmt.Errorf("unknown method %q", req.Method))
	}
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return newFailure(ReasonInvalidArgument, "decode params", err)
	}
	return nil
}
