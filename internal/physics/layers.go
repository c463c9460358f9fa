package physics

import (
	"fmt"
	"strings"
)

// LayerMask битовая маска слоёв столкновений
type LayerMask uint32

const (
	LayerDefault LayerMask = 1 << iota
	LayerEnvironment
	LayerTarget
	LayerPlayer
	LayerProjectile
	LayerShield

	AllLayers LayerMask = ^LayerMask(0)
)

var layerByName = map[string]LayerMask{
	"default":     LayerDefault,
	"environment": LayerEnvironment,
	"target":      LayerTarget,
	"player":      LayerPlayer,
	"projectile":  LayerProjectile,
	"shield":      LayerShield,
	"all":         AllLayers,
}

// Intersects сообщает, есть ли у масок общие слои
func (m LayerMask) Intersects(other LayerMask) bool {
	return m&other != 0
}

// ParseLayer разбирает имя слоя; пустое имя означает default
func ParseLayer(name string) (LayerMask, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return LayerDefault, nil
	}
	layer, ok := layerByName[name]
	if !ok {
		return 0, fmt.Errorf("неизвестный слой столкновений: %q", name)
	}
	return layer, nil
}

// ParseMask собирает маску из списка имён; пустой список — все слои
func ParseMask(names []string) (LayerMask, error) {
	if len(names) == 0 {
		return AllLayers, nil
	}
	var mask LayerMask
	for _, name := range names {
		layer, err := ParseLayer(name)
		if err != nil {
			return 0, err
		}
		mask |= layer
	}
	return mask, nil
}
