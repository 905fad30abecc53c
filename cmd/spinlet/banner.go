package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/spinlet-dev/spinlet/domain/entities"
	"github.com/spinlet-dev/spinlet/domain/routing"
	"github.com/spinlet-dev/spinlet/infrastructure/listener"
)

// printBanner lists the served routes. Colors are disabled automatically
// when w is not a terminal.
func printBanner(w io.Writer, app *entities.App, routes *routing.Table, l *listener.Listener) {
	title := color.New(color.FgCyan, color.Bold)
	route := color.New(color.FgGreen)
	dim := color.New(color.Faint)

	_, _ = title.Fprintf(w, "Serving %s", app.Name)
	if app.Version != "" {
		_, _ = dim.Fprintf(w, " %s", app.Version)
	}
	fmt.Fprintln(w)

	base := fmt.Sprintf("%s://%s", l.Scheme(), l.Addr())
	fmt.Fprintln(w, "Available routes:")
	for _, r := range routes.Routes() {
		method := r.Method
		if method == "" {
			method = "*"
		}
		fmt.Fprintf(w, "  %s: ", r.Component)
		_, _ = route.Fprintf(w, "%s%s", base, r.Pattern.String())
		_, _ = dim.Fprintf(w, " (%s)\n", method)
	}
	_, _ = dim.Fprintf(w, "Health: %s\n", healthURL(l))
}
