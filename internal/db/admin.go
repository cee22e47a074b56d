package db

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/simworld/internal/httputil"
)

// AttachAdminRoutes mounts tailsql and the history views under /debug/.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://simworld.db", db.DB, &tailsql.DBOptions{
		Label: "World history",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("world-latest", "Most recently recorded world snapshot", httputil.JSON(func(r *http.Request) (any, error) {
		rec, err := db.LatestSnapshot(r.Context())
		if errors.Is(err, ErrNoSnapshot) {
			return nil, httputil.WithStatus(http.StatusNotFound, err)
		}
		if err != nil {
			return nil, err
		}
		return rec.World, nil
	}))

	debug.Handle("monitor-log", "Archived monitor messages (?limit=N)", httputil.JSON(func(r *http.Request) (any, error) {
		limit := 100
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				return nil, httputil.Errorf(http.StatusBadRequest, "invalid limit %q", s)
			}
			limit = n
		}
		return db.RecentMonitorItems(r.Context(), limit)
	}))
}
