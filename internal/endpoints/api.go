package endpoints

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// APIResponse is the envelope for every endpoint except the health probe.
type APIResponse struct {
	Status    bool        `json:"status"`
	Value     interface{} `json:"value,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorCode int         `json:"error_code"`
}

func (res APIResponse) WriteErrorResponseWithStatusCode(w http.ResponseWriter, err error, StatusCode int) {
	res.Status = false
	res.Error = err.Error()
	if StatusCode == http.StatusUnauthorized {
		res.ErrorCode = API_UNAUTHORIZED
	} else {
		res.ErrorCode = GetErrorCode(err)
	}

	errJson, _ := json.Marshal(res)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(StatusCode)
	w.Write(errJson)
}

func (res APIResponse) WriteResultResponse(w http.ResponseWriter, result interface{}) {
	res.Status = true
	res.Value = result
	res.ErrorCode = GetErrorCode(nil)

	resJson, _ := json.Marshal(res)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(resJson)
}

// writeJSON writes body as-is, outside the APIResponse envelope. A HEAD
// request gets the headers and status only.
func writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, body interface{}) {
	payload, err := json.Marshal(body)
	if err != nil {
		APIResponse{}.WriteErrorResponseWithStatusCode(w, err, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
	w.WriteHeader(statusCode)
	if r.Method == http.MethodHead {
		return
	}
	w.Write(payload)
}
