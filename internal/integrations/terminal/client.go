package terminal

import "context"

// Result — ответ терминала на вопрос "числится ли у вас это судно с этим
// рейсом, и когда оно придёт". Eta приходит строкой в формате источника,
// разбором занимается вызывающая сторона.
type Result struct {
	VesselFound bool
	VoyageFound bool
	Eta         *string
	Raw         string
}

// Client answers a single-vessel lookup against one terminal. Implementations
// own their timeouts: a lookup returns a failure, it never hangs.
type Client interface {
	Lookup(ctx context.Context, vesselFullName, terminalCode string) (Result, error)
}
