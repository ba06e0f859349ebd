// Package sdk defines the types addon units compile against.
//
// An addon unit contributes a Router (an ordered collection of named routes
// with handlers) and a list of Dependencies (guard specs applied to every
// route of the unit). Declarative YAML units are decoded into these types by
// the host; native Go plugins export them directly:
//
//	package main
//
//	import (
//		"net/http"
//
//		"github.com/tombee/addonhost/sdk"
//	)
//
//	var Router = sdk.NewRouter("/billing", "Billing")
//
//	var Dependencies = []sdk.Dependency{
//		{Kind: "api_key", Options: map[string]any{"keys_env": "BILLING_KEYS"}},
//	}
//
//	func init() {
//		Router.Get("get_invoice", "/invoice/{id}", func(w http.ResponseWriter, r *http.Request) {
//			w.Write([]byte(r.PathValue("id")))
//		})
//	}
//
// Build it with `go build -buildmode=plugin -o billing.so` and drop the
// result into the addon tree next to a __manifest__.yaml.
package sdk
