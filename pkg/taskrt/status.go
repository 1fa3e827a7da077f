package taskrt

import (
	"io"
	"net/http"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/driftql/queryrt/pkg/outputbuffer"
)

// StatusHandler renders a live task/consumer table for the debug
// surface, grounded on modules/backendscheduler.go's StatusHandler
// (github.com/jedib0t/go-pretty/v6/table rendered directly to the
// response writer).
func (m *Manager) StatusHandler(w http.ResponseWriter, _ *http.Request) {
	tasks := m.ListTasks()
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })

	tt := table.NewWriter()
	tt.AppendHeader(table.Row{"task", "state", "base_seq", "pages_added", "consumers"})
	for _, t := range tasks {
		info := t.Buffer.Info()
		tt.AppendRow(table.Row{t.ID, info.State.String(), info.BaseSeq, info.PagesAdded, len(info.Consumers)})
	}
	tt.AppendSeparator()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, tt.Render())
	_, _ = io.WriteString(w, "\n")

	ct := table.NewWriter()
	ct.AppendHeader(table.Row{"task", "consumer", "ack_seq", "finished", "in_flight"})
	for _, t := range tasks {
		info := t.Buffer.Info()
		for _, c := range sortedConsumers(info.Consumers) {
			ct.AppendRow(table.Row{t.ID, c.ID, c.AckSeq, c.Finished, c.InFlight})
		}
	}
	ct.AppendSeparator()
	_, _ = io.WriteString(w, ct.Render())
}

func sortedConsumers(consumers []outputbuffer.ConsumerInfo) []outputbuffer.ConsumerInfo {
	out := append([]outputbuffer.ConsumerInfo(nil), consumers...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
