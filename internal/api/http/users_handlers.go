package http

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mind-engage/mindengage-courses/internal/rbac"
	"github.com/mind-engage/mindengage-courses/internal/users"
)

// POST /users/bulk
// Accepts either a multipart file= (CSV or JSON) or a raw JSON array body.
// Teachers may only provision students.
func BulkUpsertUsersHandler(store users.Store, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := rbac.ActorFromContext(r.Context())

		var rows []users.Row
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			f, _, err := r.FormFile("file")
			if err != nil {
				writeError(w, http.StatusBadRequest, "file required")
				return
			}
			defer f.Close()
			br := bufio.NewReader(f)
			// sniff CSV vs JSON by the first non-space byte
			first := peekNonSpace(br)
			if first == '[' {
				if err := json.NewDecoder(br).Decode(&rows); err != nil {
					writeError(w, http.StatusBadRequest, "bad json")
					return
				}
			} else {
				rows, err = users.ParseCSV(br)
				if err != nil {
					writeError(w, http.StatusBadRequest, "bad csv: "+err.Error())
					return
				}
			}
		} else if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
			writeError(w, http.StatusBadRequest, "expected JSON array or multipart file")
			return
		}

		for i := range rows {
			if err := validate.Struct(rows[i]); err != nil {
				writeError(w, http.StatusBadRequest, "row "+rows[i].ID+": username required")
				return
			}
			if actor.Role != rbac.RoleAdmin && !isStudentRole(rows[i].Role) {
				writeDenied(w, "only admins can provision teachers and admins")
				return
			}
		}

		st, err := store.Upsert(r.Context(), rows)
		if err != nil {
			writeErr(w, r, log, err)
			return
		}
		log.InfoContext(r.Context(), "users upserted",
			"inserted", st.Inserted, "updated", st.Updated, "by", actor.ID)
		writeJSON(w, http.StatusOK, st)
	}
}

func isStudentRole(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	r, err := rbac.ParseRole(s)
	return err == nil && r == rbac.RoleStudent
}

func peekNonSpace(br *bufio.Reader) byte {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0
		}
		if b != ' ' && b != '\n' && b != '\r' && b != '\t' {
			_ = br.UnreadByte()
			return b
		}
	}
}
