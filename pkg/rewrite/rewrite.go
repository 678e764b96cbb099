package rewrite

import (
	"context"

	"github.com/expr-lang/expr"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Policy is an operator-configured rewrite applied to the outbound chat body
// after normalization, e.g. to cap temperature or strip fields the upstream
// rejects. RemoveKeys run first, then SetKeys, then SetKeysByExpr.
type Policy struct {
	SetKeys       map[string]any    `json:"set_keys" yaml:"set_keys"`
	SetKeysByExpr map[string]string `json:"set_keys_by_expr" yaml:"set_keys_by_expr"`
	RemoveKeys    []string          `json:"remove_keys" yaml:"remove_keys"`
}

// Apply rewrites body according to the policy. Individual rewrite failures
// are logged and skipped; the body is always usable.
func (p *Policy) Apply(ctx context.Context, body []byte) []byte {
	if p == nil {
		return body
	}

	var err error
	for _, k := range p.RemoveKeys {
		body, err = sjson.DeleteBytes(body, k)
		if err != nil {
			logrus.WithContext(ctx).Warnf("[rewrite] delete key (%s) error: %s", k, err)
		}
	}

	for k, v := range p.SetKeys {
		body, err = sjson.SetBytes(body, k, v)
		if err != nil {
			logrus.WithContext(ctx).Warnf("[rewrite] set key (%s) error: %s", k, err)
		}
	}

	if len(p.SetKeysByExpr) == 0 {
		return body
	}

	env := map[string]any{
		"model":  gjson.GetBytes(body, "model").String(),
		"stream": gjson.GetBytes(body, "stream").Bool(),
	}
	for k, code := range p.SetKeysByExpr {
		prog, err := expr.Compile(code, expr.Env(env))
		if err != nil {
			logrus.WithContext(ctx).Warnf("[rewrite] compile expr (%s) error: %s", code, err)
			continue
		}
		v, err := expr.Run(prog, env)
		if err != nil {
			logrus.WithContext(ctx).Warnf("[rewrite] run expr (%s) error: %s", code, err)
			continue
		}
		if v == nil {
			logrus.WithContext(ctx).Debugf("[rewrite] skip key (%s), expr result is nil", k)
			continue
		}
		body, err = sjson.SetBytes(body, k, v)
		if err != nil {
			logrus.WithContext(ctx).Warnf("[rewrite] set key (%s) error: %s", k, err)
		}
	}

	return body
}
