package middleware

import (
	"net/http"

	"opsbridge/pkg/problems"
)

func writeProblem(w http.ResponseWriter, status int, slug, title, detail string) {
	problems.Write(w, problems.New(status, slug, title, detail))
}
