package domain

import "net/http"

// RedirectParam is one name/value pair from a connector redirect descriptor.
type RedirectParam struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// RedirectForm is the canonical follow-up request the customer's browser must
// submit to complete an authentication/redirect step. Two shapes exist: a
// form submission with fields, and a bare GET redirect (FormFields nil).
// Immutable once constructed.
type RedirectForm struct {
	Endpoint   string            `json:"endpoint"`
	Method     string            `json:"method"`
	FormFields map[string]string `json:"form_fields,omitempty"`
}

// NewGetRedirect builds the bare-URL redirect shape.
func NewGetRedirect(endpoint string) *RedirectForm {
	return &RedirectForm{Endpoint: endpoint, Method: http.MethodGet}
}

// NewRedirectForm normalizes a connector redirect descriptor. An explicit
// method is honored; otherwise descriptors that enumerate parameters default
// to POST and bare URLs to GET. Duplicate parameter names resolve
// last-write-wins.
func NewRedirectForm(endpoint string, method string, params []RedirectParam) *RedirectForm {
	if method == "" {
		if len(params) > 0 {
			method = http.MethodPost
		} else {
			method = http.MethodGet
		}
	}
	form := &RedirectForm{Endpoint: endpoint, Method: method}
	if len(params) > 0 {
		form.FormFields = make(map[string]string, len(params))
		for _, p := range params {
			form.FormFields[p.Name] = p.Value
		}
	}
	return form
}
