package routes

import (
	"github.com/gorilla/mux"
	schedulerHandlers "github.com/wonny/aegis-strategy/internal/api/handlers/scheduler"
	"github.com/wonny/aegis-strategy/internal/service/signalfeed"
)

// RegisterSchedulerRoutes registers scheduler control and signal stream routes.
// broker may be nil, in which case the stream endpoint is not mounted.
func RegisterSchedulerRoutes(router *mux.Router, svc schedulerHandlers.Service, broker *signalfeed.Broker, allowedOrigins []string) {
	controlHandler := schedulerHandlers.NewControlHandler(svc)

	router.HandleFunc("/api/scheduler/status", controlHandler.GetStatus).Methods("GET")
	router.HandleFunc("/api/scheduler/start", controlHandler.Start).Methods("POST")
	router.HandleFunc("/api/scheduler/stop", controlHandler.Stop).Methods("POST")
	router.HandleFunc("/api/scheduler/strategy/{name}/start", controlHandler.StartStrategy).Methods("POST")
	router.HandleFunc("/api/scheduler/strategy/{name}/stop", controlHandler.StopStrategy).Methods("POST")
	router.HandleFunc("/api/scheduler/history", controlHandler.GetHistory).Methods("GET")

	if broker != nil {
		streamHandler := schedulerHandlers.NewStreamHandler(broker, allowedOrigins)
		router.HandleFunc("/api/scheduler/stream", streamHandler.Stream).Methods("GET")
	}
}
