package weapon

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/annel0/arena-combat/internal/vec"
	"gopkg.in/yaml.v3"
)

// Catalog неизменяемая таблица определений оружия по типу
type Catalog struct {
	defs map[Type]Definition
}

// NewCatalog проверяет определения и строит каталог
func NewCatalog(defs []Definition) (*Catalog, error) {
	c := &Catalog{defs: make(map[Type]Definition, len(defs))}
	var errs []error
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := c.defs[def.Type]; dup {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateDefinition, def.Type))
			continue
		}
		def = def.clone()
		def.RecoilPositionCurve = def.RecoilPositionCurve.orDefault()
		def.RecoilRotationCurve = def.RecoilRotationCurve.orDefault()
		if def.Category == CategoryShield {
			var spec ShieldSpec
			if def.Shield != nil {
				spec = *def.Shield
			}
			spec = spec.withDefaults()
			def.Shield = &spec
		}
		c.defs[def.Type] = def
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return c, nil
}

// Lookup возвращает копию определения; отсутствие типа — не ошибка
func (c *Catalog) Lookup(t Type) (Definition, bool) {
	def, ok := c.defs[t]
	return def.clone(), ok
}

// Len возвращает число определений
func (c *Catalog) Len() int {
	return len(c.defs)
}

// Definitions возвращает копию определений, отсортированную по типу
func (c *Catalog) Definitions() []Definition {
	out := make([]Definition, 0, len(c.defs))
	for _, def := range c.defs {
		out = append(out, def.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// catalogFile формат YAML файла каталога
type catalogFile struct {
	Weapons []Definition `yaml:"weapons"`
}

// ParseCatalog разбирает YAML каталога
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	if len(file.Weapons) == 0 {
		return nil, fmt.Errorf("%w: catalog has no weapons", ErrInvalidDefinition)
	}
	return NewCatalog(file.Weapons)
}

// LoadCatalogFile загружает каталог из YAML файла
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение каталога %s: %w", path, err)
	}
	catalog, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("каталог %s: %w", path, err)
	}
	return catalog, nil
}

// Типы встроенного каталога
const (
	GasCan        Type = "GasCan"
	PropaneTank   Type = "PropaneTank"
	Chainsaw      Type = "Chainsaw"
	Crossbow      Type = "Crossbow"
	CleanCrossbow Type = "CleanCrossbow"
	MetalBat      Type = "MetalBat"
	WoodenBat     Type = "WoodenBat"
	Pistol        Type = "Pistol"
	AssaultRifle  Type = "AssaultRifle"
	SniperRifle   Type = "SniperRifle"
	FireStaff     Type = "FireStaff"
	RiotShield    Type = "RiotShield"
)

// DefaultDefinitions встроенный набор оружия арены
func DefaultDefinitions() []Definition {
	muzzle := vec.Vec3{Z: 0.6}
	return []Definition{
		{
			Type: GasCan, Category: CategorySpecial, Damage: 100,
			MagazineSize: 1, Consumable: true, FireInterval: 1.0,
			Prefab: "SM_Wep_Bomb_GasCan_01", ProjectileSpeed: 15,
			Description: "A throwable gas canister that explodes on impact, dealing massive area damage.",
		},
		{
			Type: PropaneTank, Category: CategorySpecial, Damage: 120,
			MagazineSize: 1, Consumable: true, FireInterval: 1.0,
			Prefab: "SM_Wep_Bomb_Propane_01", ProjectileSpeed: 12,
			Description: "A heavy propane tank that detonates with a devastating blast.",
		},
		{
			Type: Chainsaw, Category: CategoryMelee, Damage: 75, FireInterval: 0.5,
			Prefab: "SM_Wep_ChainSaw_01", Reach: 1.2, FireSound: "sfx_chainsaw_rev",
			Description: "A powerful melee weapon that deals continuous damage when held against enemies.",
		},
		{
			Type: Crossbow, Category: CategoryRanged, Damage: 50, MagazineSize: 1,
			FireInterval: 1.5, ReloadDuration: 2.0, RecoilDuration: 0.3,
			RecoilForce: vec.Vec3{Y: 0.02, Z: -0.08}, Prefab: "SM_Wep_CrossBow_01",
			MuzzleOffset: muzzle, ProjectileSpeed: 80,
			FireSound: "sfx_crossbow_fire", ReloadSound: "sfx_crossbow_reload",
			Description: "A precision weapon that fires bolts with high accuracy and damage.",
		},
		{
			Type: CleanCrossbow, Category: CategoryRanged, Damage: 55, MagazineSize: 1,
			FireInterval: 1.4, ReloadDuration: 1.8, RecoilDuration: 0.3,
			RecoilForce: vec.Vec3{Y: 0.02, Z: -0.07}, Prefab: "SM_Wep_CrossBow_Clean_01",
			MuzzleOffset: muzzle, ProjectileSpeed: 85,
			FireSound: "sfx_crossbow_fire", ReloadSound: "sfx_crossbow_reload",
			Description: "A well-maintained crossbow with a smoother draw and slightly higher damage.",
		},
		{
			Type: MetalBat, Category: CategoryMelee, Damage: 30, FireInterval: 1.0,
			Prefab: "SM_Wep_Bat_Metal_01", Reach: 1.1,
			Description: "A sturdy metal bat for close-quarters combat.",
		},
		{
			Type: WoodenBat, Category: CategoryMelee, Damage: 25, FireInterval: 1.2,
			Prefab: "SM_Wep_Bat_Wood_01", Reach: 1.0,
			Description: "A classic wooden bat. Lighter and slower than its metal cousin.",
		},
		{
			Type: Pistol, Category: CategoryRanged, Damage: 20, MagazineSize: 10,
			FireInterval: 0.25, ReloadDuration: 1.5, RecoilDuration: 0.2,
			RecoilForce: vec.Vec3{Y: 0.03, Z: -0.05}, Prefab: "SM_Wep_Pistol_01",
			MuzzleOffset: vec.Vec3{Z: 0.25}, SpreadDegrees: 1.5,
			MuzzleEffect: "fx_muzzle_small", FireSound: "sfx_pistol_fire", ReloadSound: "sfx_pistol_reload",
			Description: "A reliable sidearm with a ten-round magazine.",
		},
		{
			Type: AssaultRifle, Category: CategoryRanged, Damage: 25, MagazineSize: 30,
			FireInterval: 0.1, ReloadDuration: 2.5, RecoilDuration: 0.12,
			RecoilForce: vec.Vec3{Y: 0.02, Z: -0.04}, Prefab: "SM_Wep_Rifle_Assault_01",
			MuzzleOffset: muzzle, SpreadDegrees: 3,
			MuzzleEffect: "fx_muzzle_rifle", FireSound: "sfx_rifle_fire", ReloadSound: "sfx_rifle_reload",
			Description: "Fully automatic rifle. High rate of fire, noticeable spread.",
		},
		{
			Type: SniperRifle, Category: CategoryRanged, Damage: 90, MagazineSize: 5,
			FireInterval: 1.2, ReloadDuration: 3.0, RecoilDuration: 0.5,
			RecoilForce: vec.Vec3{Y: 0.08, Z: -0.15}, Prefab: "SM_Wep_Rifle_Sniper_01",
			MuzzleOffset: vec.Vec3{Z: 0.9}, ProjectileSpeed: 300,
			MuzzleEffect: "fx_muzzle_rifle", FireSound: "sfx_sniper_fire", ReloadSound: "sfx_sniper_reload",
			Description: "Long-range rifle with a fast projectile and heavy recoil.",
		},
		{
			Type: FireStaff, Category: CategoryMagic, Damage: 40, MagazineSize: 5,
			FireInterval: 0.8, ReloadDuration: 4.0, RecoilDuration: 0.25,
			RecoilForce: vec.Vec3{Y: 0.01, Z: -0.02}, Prefab: "SM_Wep_Staff_Fire_01",
			MuzzleOffset: vec.Vec3{Z: 1.1}, ProjectileSpeed: 40,
			MuzzleEffect: "fx_fireball_cast", FireSound: "sfx_fireball",
			Description: "Casts slow fireballs. Charges regenerate on reload.",
		},
		{
			Type: RiotShield, Category: CategoryShield,
			Prefab: "SM_Wep_Shield_Riot_01",
			Shield: &ShieldSpec{
				Mode: ShieldEnergy, Durability: 100, RechargeRate: 5, Energy: 50,
				HalfExtents: vec.Vec3{X: 0.4, Y: 0.6, Z: 0.05},
			},
			Description: "Blocks incoming fire while raised. Cannot attack.",
		},
	}
}

// DefaultCatalog возвращает встроенный каталог
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultDefinitions())
	if err != nil {
		// встроенные определения проверяются тестами
		panic(err)
	}
	return c
}
