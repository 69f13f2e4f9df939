package backup

import (
	"context"
	"sort"
	"strings"

	"github.com/juju/errors"

	"github.com/ypeckstadt/cobra/internal/models"
)

// Volumes lists the engine volumes, keeping those in include (all when
// include is empty) and dropping those in exclude. A name in both sets is
// rejected before the engine is contacted.
func (c *Client) Volumes(ctx context.Context, include, exclude []string) ([]models.Volume, error) {
	in := set(include)
	out := set(exclude)

	var common []string
	for name := range in {
		if out[name] {
			common = append(common, name)
		}
	}
	if len(common) > 0 {
		sort.Strings(common)
		return nil, errors.NotValidf("include volumes list intersects with exclude volumes list (%s)", strings.Join(common, ", "))
	}

	if err := c.needEngine(); err != nil {
		return nil, errors.Trace(err)
	}
	all, err := c.engine.ListVolumes(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}

	volumes := make([]models.Volume, 0, len(all))
	for _, v := range all {
		if len(in) > 0 && !in[v.Name] {
			continue
		}
		if out[v.Name] {
			continue
		}
		volumes = append(volumes, v)
	}
	return volumes, nil
}

func set(names []string) map[string]bool {
	s := make(map[string]bool, len(names))
	for _, n := range names {
		s[n] = true
	}
	return s
}
