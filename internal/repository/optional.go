package repository

import (
	"encoding/json"
	"fmt"

	"github.com/azhengyongqin/wikitrans-hub/internal/model"
)

// Optional 区分「未提供」和「设置为空值」的补丁字段。
// 零值即 Unset；Set(v) 表示本次更新要写入 v（包括空串/空对象）。
type Optional[T any] struct {
	value T
	set   bool
}

// Set 构造已设置的 Optional
func Set[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

func (o Optional[T]) IsSet() bool { return o.set }

func (o Optional[T]) Value() T { return o.value }

// TaskUpdate 任务补丁。每个字段都可选：未 Set 的字段在 DB 中保持不变。
type TaskUpdate struct {
	Title    Optional[string]
	Status   Optional[model.TaskStatus]
	Form     Optional[json.RawMessage]
	Data     Optional[json.RawMessage]
	Results  Optional[*Results]
	MainFile Optional[string]
}

// Empty 所有字段都未 Set
func (u TaskUpdate) Empty() bool {
	return !u.Title.IsSet() && !u.Status.IsSet() && !u.Form.IsSet() &&
		!u.Data.IsSet() && !u.Results.IsSet() && !u.MainFile.IsSet()
}

// Columns 转成列名 → 值的更新集。JSON 字段只在 Set 时（重新）序列化。
func (u TaskUpdate) Columns() (map[string]interface{}, error) {
	cols := map[string]interface{}{}
	if u.Title.IsSet() {
		cols["title"] = u.Title.Value()
		cols["normalized_title"] = model.NormalizeTitle(u.Title.Value())
	}
	if u.Status.IsSet() {
		if !u.Status.Value().Valid() {
			return nil, fmt.Errorf("invalid task status %q", u.Status.Value())
		}
		cols["status"] = string(u.Status.Value())
	}
	if u.Form.IsSet() {
		cols["form_json"] = []byte(u.Form.Value())
	}
	if u.Data.IsSet() {
		cols["data_json"] = []byte(u.Data.Value())
	}
	if u.Results.IsSet() {
		if u.Results.Value() == nil {
			cols["results_json"] = []byte(nil)
		} else {
			b, err := json.Marshal(u.Results.Value())
			if err != nil {
				return nil, fmt.Errorf("marshal results: %w", err)
			}
			cols["results_json"] = b
		}
	}
	if u.MainFile.IsSet() {
		cols["main_file"] = u.MainFile.Value()
	}
	return cols, nil
}
