package amplitude

import "context"

// Callback method names delivered to the host. They match the handlers the
// Unity integration exposes on its callback game object.
const (
	MethodFetchSuccess    = "OnFetchSuccess"
	MethodFetchError      = "OnFetchError"
	MethodInitializeError = "OnInitializeError"

	fetchSuccessMessage = "Fetch completed successfully"
)

// Operation identifies what produced an [Outcome].
type Operation int

const (
	// OperationFetch is a variant fetch.
	OperationFetch Operation = iota
	// OperationInitialize is a failed client start during Initialize.
	OperationInitialize
)

func (o Operation) String() string {
	switch o {
	case OperationFetch:
		return "fetch"
	case OperationInitialize:
		return "initialize"
	default:
		return "unknown"
	}
}

// Outcome is the result of one fetch (or a failed initialization) as it is
// reported to the host.
type Outcome struct {
	// RequestID correlates the outcome with the call that produced it.
	RequestID string
	Operation Operation
	// Err is nil on success.
	Err error
}

// Success reports whether the operation succeeded.
func (o Outcome) Success() bool {
	return o.Err == nil
}

// ErrorMessage returns the error text, or "" on success.
func (o Outcome) ErrorMessage() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Method returns the host callback method the outcome is addressed to.
func (o Outcome) Method() string {
	switch {
	case o.Operation == OperationInitialize:
		return MethodInitializeError
	case o.Err != nil:
		return MethodFetchError
	default:
		return MethodFetchSuccess
	}
}

// Message returns the callback argument: a fixed text on success,
// the error message otherwise.
func (o Outcome) Message() string {
	if o.Err != nil {
		return o.Err.Error()
	}
	return fetchSuccessMessage
}

// Delivery is an [Outcome] addressed to the callback target that was
// registered when the outcome was produced.
type Delivery struct {
	Target  string
	Outcome Outcome
}

// Dispatcher hands deliveries to the host runtime. It is owned by the host
// integration: it may call into a native function pointer, post to a message
// loop, or send on a channel. Dispatch is called from a single delivery
// goroutine, in outcome order, and may block.
type Dispatcher interface {
	Dispatch(ctx context.Context, delivery Delivery) error
}

// DispatcherFunc adapts a function to the [Dispatcher] interface.
type DispatcherFunc func(ctx context.Context, delivery Delivery) error

// Dispatch implements [Dispatcher].
func (f DispatcherFunc) Dispatch(ctx context.Context, delivery Delivery) error {
	return f(ctx, delivery)
}

// ChannelDispatcher delivers outcomes on a channel that the host drains on
// whatever goroutine or loop it requires.
type ChannelDispatcher struct {
	ch chan Delivery
}

// NewChannelDispatcher returns a [ChannelDispatcher] whose channel holds up
// to buffer undrained deliveries before Dispatch blocks.
func NewChannelDispatcher(buffer int) *ChannelDispatcher {
	if buffer < 0 {
		buffer = 0
	}
	return &ChannelDispatcher{ch: make(chan Delivery, buffer)}
}

// Deliveries returns the channel the host reads deliveries from.
func (d *ChannelDispatcher) Deliveries() <-chan Delivery {
	return d.ch
}

// Dispatch implements [Dispatcher].
func (d *ChannelDispatcher) Dispatch(ctx context.Context, delivery Delivery) error {
	select {
	case d.ch <- delivery:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
