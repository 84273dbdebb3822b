package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sdko-org/logmill/internal/analytics"
)

type reportInfo struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Params      []analytics.Param `json:"params,omitempty"`
}

func (api *API) HandleListReports(w http.ResponseWriter, r *http.Request) {
	defs := api.reports.List()
	infos := make([]reportInfo, 0, len(defs))
	for _, def := range defs {
		infos = append(infos, reportInfo{
			Name:        def.Name,
			Description: def.Description,
			Params:      def.Params,
		})
	}
	writeJSON(w, http.StatusOK, infos)
}

// HandleRunReport executes a named report. Query string parameters
// become report arguments.
func (api *API) HandleRunReport(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	args := make(map[string]string)
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			args[k] = v[0]
		}
	}

	report, err := api.reports.Run(r.Context(), name, args)
	if err != nil {
		if errors.Is(err, analytics.ErrUnknownReport) {
			writeError(w, http.StatusNotFound, "unknown report")
			return
		}
		api.log.WithError(err).WithField("report", name).Error("Report failed")
		writeError(w, http.StatusInternalServerError, "report failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
