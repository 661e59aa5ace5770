package alerts

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	queryrunner "statboard-backend"
)

type State string

const (
	StateUnknown   State = "unknown"
	StateOK        State = "ok"
	StateTriggered State = "triggered"
)

const (
	OpGreaterThan = "greater than"
	OpLessThan    = "less than"
	OpEquals      = "equals"
)

// ErrNoData marks a result payload missing the row or column an alert
// monitors. The evaluation cycle fails but the stored state is retained.
var ErrNoData = errors.New("alert column or row missing in result")

// ErrInvalidOperator marks an alert configured with an operator outside the
// supported set. No transition occurs.
var ErrInvalidOperator = errors.New("invalid alert operator")

// Evaluate computes the new alert state from the freshest result payload. The
// monitored value is taken from the first row under the configured column.
func Evaluate(data queryrunner.ResultData, column, op string, threshold any) (State, error) {
	if len(data.Rows) == 0 {
		return StateUnknown, fmt.Errorf("%w: empty result", ErrNoData)
	}
	value, ok := data.Rows[0][column]
	if !ok {
		return StateUnknown, fmt.Errorf("%w: column %q", ErrNoData, column)
	}
	switch op {
	case OpGreaterThan, OpLessThan:
		observed, err := toFloat(value)
		if err != nil {
			return StateUnknown, fmt.Errorf("%w: non-numeric value %v", ErrNoData, value)
		}
		target, err := toFloat(threshold)
		if err != nil {
			return StateUnknown, fmt.Errorf("%w: non-numeric threshold %v", ErrInvalidOperator, threshold)
		}
		if (op == OpGreaterThan && observed > target) || (op == OpLessThan && observed < target) {
			return StateTriggered, nil
		}
		return StateOK, nil
	case OpEquals:
		observed, obsErr := toFloat(value)
		target, tgtErr := toFloat(threshold)
		if obsErr == nil && tgtErr == nil {
			if observed == target {
				return StateTriggered, nil
			}
			return StateOK, nil
		}
		if fmt.Sprint(value) == fmt.Sprint(threshold) {
			return StateTriggered, nil
		}
		return StateOK, nil
	default:
		return StateUnknown, fmt.Errorf("%w: %q", ErrInvalidOperator, op)
	}
}

// ShouldNotify decides whether a notification fires for this evaluation.
// Notifications fire on the transition into triggered, or while continuously
// triggered once per rearm interval. Without a rearm interval only the initial
// transition notifies.
func ShouldNotify(previous, next State, rearmSeconds int, lastTriggeredAt *time.Time, now time.Time) bool {
	if next != StateTriggered {
		return false
	}
	if previous != StateTriggered {
		return true
	}
	if rearmSeconds <= 0 {
		return false
	}
	if lastTriggeredAt == nil {
		return true
	}
	return !withinRearm(*lastTriggeredAt, rearmSeconds, now)
}

func withinRearm(last time.Time, rearmSeconds int, now time.Time) bool {
	return now.Sub(last) < time.Duration(rearmSeconds)*time.Second
}

func toFloat(val any) (float64, error) {
	switch t := val.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case string:
		return strconv.ParseFloat(t, 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", val)
	}
}
