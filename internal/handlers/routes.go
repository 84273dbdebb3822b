package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

func RegisterRoutes(r *mux.Router, api *API, metricsHandler http.Handler) {
	r.HandleFunc("/healthz", HandleHealth).Methods("GET")
	r.Handle("/metrics", metricsHandler).Methods("GET")

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/ingest", api.HandleIngest).Methods("POST")
	v1.HandleFunc("/runs", api.HandleCreateRun).Methods("POST")
	v1.HandleFunc("/runs", api.HandleListRuns).Methods("GET")
	v1.HandleFunc("/runs/{id:[0-9]+}", api.HandleGetRun).Methods("GET")
	v1.HandleFunc("/reports", api.HandleListReports).Methods("GET")
	v1.HandleFunc("/reports/{name}", api.HandleRunReport).Methods("GET")
}
