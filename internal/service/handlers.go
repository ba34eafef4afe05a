package service

import (
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/ledgerly/pkg/api"
)

// NewRecordServiceHandler builds the HTTP handler for the record service and
// returns the path prefix to mount it on.
func NewRecordServiceHandler(svc *RecordService, opts ...connect.HandlerOption) (string, http.Handler) {
	save := connect.NewUnaryHandler(api.SaveRecordProcedure, svc.SaveRecord, opts...)
	query := connect.NewUnaryHandler(api.QueryRecordsProcedure, svc.QueryRecords, opts...)
	del := connect.NewUnaryHandler(api.DeleteRecordProcedure, svc.DeleteRecord, opts...)
	status := connect.NewUnaryHandler(api.AccountStatusProcedure, svc.AccountStatus, opts...)

	return "/" + api.RecordServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case api.SaveRecordProcedure:
			save.ServeHTTP(w, r)
		case api.QueryRecordsProcedure:
			query.ServeHTTP(w, r)
		case api.DeleteRecordProcedure:
			del.ServeHTTP(w, r)
		case api.AccountStatusProcedure:
			status.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// NewAuthServiceHandler builds the HTTP handler for the auth service.
func NewAuthServiceHandler(svc *AuthService, opts ...connect.HandlerOption) (string, http.Handler) {
	register := connect.NewUnaryHandler(api.RegisterProcedure, svc.Register, opts...)
	login := connect.NewUnaryHandler(api.LoginProcedure, svc.Login, opts...)

	return "/" + api.AuthServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case api.RegisterProcedure:
			register.ServeHTTP(w, r)
		case api.LoginProcedure:
			login.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}
