// Package stats строит сводные таблицы по каталогу оружия и собирает метрики хоста.
package stats

import (
	"math"
	"strconv"
	"strings"

	"github.com/annel0/arena-combat/internal/weapon"
)

// WeaponRow строка таблицы характеристик оружия
type WeaponRow struct {
	Name           string  `json:"name"`
	Type           string  `json:"type"`
	Category       string  `json:"category"`
	Damage         float64 `json:"damage"`
	Magazine       int     `json:"magazine"`
	FireInterval   float64 `json:"fire_interval"`
	ReloadDuration float64 `json:"reload_duration"`
	RecoilDuration float64 `json:"recoil_duration"`
	DPS            float64 `json:"dps"` // урон в секунду без учёта перезарядки
}

// WeaponRows строит строки таблицы в порядке определений.
// Имя берётся из префаба, если он задан.
func WeaponRows(defs []weapon.Definition) []WeaponRow {
	rows := make([]WeaponRow, 0, len(defs))
	for _, d := range defs {
		name := d.Prefab
		if name == "" {
			name = string(d.Type)
		}
		var dps float64
		if d.CanFire() && d.FireInterval > 0 {
			dps = d.Damage / d.FireInterval
		}
		rows = append(rows, WeaponRow{
			Name:           name,
			Type:           string(d.Type),
			Category:       string(d.Category),
			Damage:         d.Damage,
			Magazine:       d.MagazineSize,
			FireInterval:   d.FireInterval,
			ReloadDuration: d.ReloadDuration,
			RecoilDuration: d.RecoilDuration,
			DPS:            dps,
		})
	}
	return rows
}

// WeaponTable возвращает таблицу с разделителем табуляцией
func WeaponTable(defs []weapon.Definition) string {
	var sb strings.Builder
	sb.WriteString("Name\tType\tCategory\tDamage\tMagazine\tFire Interval\tReload Time\tRecoil Duration\tDPS\n")
	if len(defs) == 0 {
		sb.WriteString("No weapon data available.\n")
		return sb.String()
	}
	for _, r := range WeaponRows(defs) {
		cols := []string{
			r.Name,
			r.Type,
			r.Category,
			formatNumber(r.Damage),
			strconv.Itoa(r.Magazine),
			formatNumber(r.FireInterval),
			formatNumber(r.ReloadDuration),
			formatNumber(r.RecoilDuration),
			formatNumber(r.DPS),
		}
		sb.WriteString(strings.Join(cols, "\t"))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Report полный отчёт с заголовком раздела
func Report(defs []weapon.Definition) string {
	return "=== Weapon Statistics ===\n" + WeaponTable(defs)
}

// formatNumber: не более двух знаков после запятой, без хвостовых нулей
func formatNumber(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
