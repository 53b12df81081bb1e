package registry

import (
	"fmt"

	"github.com/taoyao-code/framelink/internal/protocol/packets"
	"github.com/taoyao-code/framelink/internal/protocol/schemadef"
)

// Load 组装注册表：可选内置包，再加上各目录下的定义文件。
// 定义文件与内置包重名视为错误。
func Load(builtin bool, dirs ...string) (*Registry, error) {
	r := New()
	if builtin {
		for _, c := range packets.Builtin() {
			if err := r.Register(c); err != nil {
				return nil, err
			}
		}
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		defs, err := schemadef.LoadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, d := range defs {
			c, err := d.Build()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", d.Path, err)
			}
			if err := r.Register(c); err != nil {
				return nil, fmt.Errorf("%s: %w", d.Path, err)
			}
		}
	}
	return r, nil
}
