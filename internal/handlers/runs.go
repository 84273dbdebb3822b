package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sdko-org/logmill/internal/models"
	"gorm.io/gorm"
)

type createRunRequest struct {
	Prefix string `json:"prefix"`
}

// HandleCreateRun registers an ETL run and executes it in the
// background. The response carries the run id for polling.
func (api *API) HandleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.Prefix == "" {
		req.Prefix = api.cfg.RawPrefix
	}

	run, err := api.runner.Begin(r.Context(), req.Prefix)
	if err != nil {
		api.log.WithError(err).Error("Failed to begin run")
		writeError(w, http.StatusInternalServerError, "failed to begin run")
		return
	}

	// The run outlives the request; errors end up on the run row.
	go func() {
		if err := api.runner.Execute(context.Background(), run); err != nil {
			api.log.WithError(err).WithField("run_id", run.ID).Error("Run execution failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, run)
}

func (api *API) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	var runs []models.ImportRun
	if err := api.db.WithContext(r.Context()).
		Order("id DESC").Limit(50).Find(&runs).Error; err != nil {
		api.log.WithError(err).Error("Run listing failed")
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (api *API) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	var run models.ImportRun
	if err := api.db.WithContext(r.Context()).First(&run, uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		api.log.WithError(err).Error("Run lookup failed")
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}
