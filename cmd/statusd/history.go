package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"ex-hibiki/internal/readingcache"
	"ex-hibiki/internal/statusfeed"
)

const defaultRecentLimit = 50

// handleReadings serves cached reading history. A device query parameter
// narrows the response to that device's latest reading.
func handleReadings(cache *readingcache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if device := r.URL.Query().Get("device"); device != "" {
			reading, ok := cache.Latest(device)
			if !ok {
				http.Error(w, "no recent reading for device", http.StatusNotFound)
				return
			}
			writeReadings(w, []statusfeed.Reading{reading})
			return
		}

		limit := defaultRecentLimit
		if rawLimit := r.URL.Query().Get("limit"); rawLimit != "" {
			parsed, err := strconv.Atoi(rawLimit)
			if err != nil || parsed <= 0 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		writeReadings(w, cache.Recent(limit))
	}
}

func writeReadings(w http.ResponseWriter, readings []statusfeed.Reading) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(readings)
}
