package http

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"strconv"
)

//go:embed templates/operator.html
var templates embed.FS

var operatorTemplate = template.Must(template.ParseFS(templates, "templates/operator.html"))

type operatorPageData struct {
	AdminToken string
}

func (srv *Server) operatorPage(w http.ResponseWriter, _ *http.Request, _ string) error {
	var buf bytes.Buffer
	if err := operatorTemplate.Execute(&buf, operatorPageData{AdminToken: srv.adminToken}); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
	return nil
}
