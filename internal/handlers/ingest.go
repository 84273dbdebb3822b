package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// HandleIngest stores one raw access log file under the raw prefix.
// The body is the file content; alternatively ?url= pulls it from a
// remote HTTP export.
func (api *API) HandleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	key := r.URL.Query().Get("key")
	if key == "" {
		key = fmt.Sprintf("%s%s-upload.log", api.cfg.RawPrefix, time.Now().UTC().Format("20060102T150405.000Z"))
	} else {
		key = api.cfg.RawPrefix + strings.TrimPrefix(key, "/")
	}
	if !safeKeyChars.MatchString(key) || strings.Contains(key, "..") {
		writeError(w, http.StatusBadRequest, "invalid object key")
		return
	}

	var body io.Reader = r.Body
	if sourceURL := r.URL.Query().Get("url"); sourceURL != "" {
		remote, err := api.source.Fetch(ctx, sourceURL)
		if err != nil {
			api.log.WithError(err).Warn("Source fetch failed")
			writeError(w, http.StatusBadGateway, "failed to fetch source")
			return
		}
		defer remote.Close()
		body = remote
	}

	if err := api.store.Upload(ctx, key, body, "text/plain"); err != nil {
		api.log.WithError(err).WithField("key", key).Error("Raw log upload failed")
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	api.log.WithFields(logrus.Fields{"key": key}).Info("Ingested raw log")
	writeJSON(w, http.StatusCreated, map[string]string{"key": key})
}
