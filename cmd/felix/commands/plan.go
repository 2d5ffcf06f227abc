package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	ferrors "github.com/systmms/felix/internal/errors"
	"github.com/systmms/felix/pkg/plugin"
	"github.com/systmms/felix/pkg/rotation"
)

// plannedRotation is what a rotation would do for one identity.
type plannedRotation struct {
	Name      string
	Service   string
	Locator   string
	ActiveKey string
	Inactive  int
	Problem   string
}

// plan inspects every identity without touching keys or downstream
// services.
func plan(ctx context.Context, out io.Writer, store rotation.KeyStore, plugins rotation.PluginResolver,
	settings map[string]plugin.Settings, depth int, path string) error {
	identities, err := store.ListIdentities(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to list identities under %s: %w", path, err)
	}

	planned := make([]plannedRotation, 0, len(identities))
	for _, identity := range identities {
		planned = append(planned, planOne(ctx, store, plugins, settings, depth, identity))
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "USER\tSERVICE\tLOCATOR\tACTIVE KEY\tTO PURGE\tPLAN\n")
	_, _ = fmt.Fprintf(w, "----\t-------\t-------\t----------\t--------\t----\n")
	ready := 0
	for _, p := range planned {
		action := "rotate"
		if p.Problem != "" {
			action = "skip: " + p.Problem
		} else {
			ready++
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			p.Name, dash(p.Service), dash(p.Locator), dash(p.ActiveKey), p.Inactive, action)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\n%d of %d users ready to rotate under %s\n", ready, len(planned), path)
	return nil
}

func planOne(ctx context.Context, store rotation.KeyStore, plugins rotation.PluginResolver,
	settings map[string]plugin.Settings, depth int, identity rotation.Identity) plannedRotation {
	p := plannedRotation{Name: identity.Name}

	service, locator, err := rotation.ParseLocator(identity.Path, identity.Name, depth)
	if err != nil {
		p.Problem = err.Error()
		return p
	}
	p.Service, p.Locator = service, locator

	if _, err := plugins.Resolve(service, settings); err != nil {
		p.Problem = err.Error()
		return p
	}

	keys, err := store.ListKeys(ctx, identity)
	if err != nil {
		p.Problem = err.Error()
		return p
	}

	active := 0
	for _, k := range keys {
		switch k.Status {
		case rotation.KeyStatusActive:
			active++
			p.ActiveKey = k.ID
		case rotation.KeyStatusInactive:
			p.Inactive++
		}
	}
	if active > 1 {
		p.ActiveKey = ""
		p.Problem = ferrors.MultipleActiveKeysError{Identity: identity.Name, Count: active}.Error()
	}
	return p
}
