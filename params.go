package bpipe

import (
	"context"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

// RouteParamsGuard validates the path parameters of the activated route. Failures are rejected with a
// 400 and a payload of the form {"paramsError": {param: reason}}.
func RouteParamsGuard(validators map[string][]FieldValidator) Guard {
	return Predicate(func(ctx context.Context, route *ActivatedRoute) (bool, error) {
		var msgs []string
		reasons := map[string]string{}

		keys := lo.Keys(route.Params)
		slices.Sort(keys)

		for _, k := range keys {
			for _, validate := range validators[k] {
				if err := validate(ctx, route.Params[k]); err != nil {
					msgs = append(msgs, err.Error())
					reasons[k] = err.Error()
				}
			}
		}

		if len(msgs) > 0 {
			return false, NewError(CodeBadRequest, errors.New(strings.Join(msgs, "\n"))).
				WithPayload(map[string]any{"paramsError": reasons})
		}

		return true, nil
	}).Named("route params")
}
