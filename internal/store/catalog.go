// internal/store/catalog.go
package store

import (
	"errors"
	"fmt"
	"strings"

	"servo-commissioning/internal/model"
)

var (
	ErrUnknownPart   = errors.New("unknown robot part")
	ErrUnknownModule = errors.New("unknown module")
)

// Catalog holds the static robot part, motor slot and module tables.
// It is built once and read concurrently without locking.
type Catalog struct {
	parts       []model.RobotPart
	partAliases map[string]int
	modules     []model.Module
	modAliases  map[string]int
}

type partDef struct {
	name      string
	aliases   []string
	canonical string
	slots     []model.MotorSlot
}

func armSlots(side, label, adj string, base int) []model.MotorSlot {
	return []model.MotorSlot{
		{Name: fmt.Sprintf("épaule %s %d", adj, base), Key: side + "_shoulder_pitch", Identifier: base},
		{Name: fmt.Sprintf("épaule %s %d", adj, base+1), Key: side + "_shoulder_roll", Identifier: base + 1},
		{Name: fmt.Sprintf("biceps %s %d", label, base+2), Key: side + "_arm_yaw", Identifier: base + 2},
		{Name: fmt.Sprintf("coude %s %d", label, base+3), Key: side + "_elbow_pitch", Identifier: base + 3},
		{Name: fmt.Sprintf("avant-bras %s %d", label, base+4), Key: side + "_forearm_yaw", Identifier: base + 4},
		{Name: fmt.Sprintf("poignet %s %d", label, base+5), Key: side + "_wrist_pitch", Identifier: base + 5},
		{Name: fmt.Sprintf("poignet %s %d", label, base+6), Key: side + "_wrist_roll", Identifier: base + 6},
		{Name: fmt.Sprintf("pince %s %d", adj, base+7), Key: side + "_gripper", Identifier: base + 7},
	}
}

var partDefs = []partDef{
	{
		name:      "right arm",
		aliases:   []string{"bras droit", "right_arm"},
		canonical: "right_arm_advanced",
		slots:     armSlots("r", "droit", "droite", 10),
	},
	{
		name:      "left arm",
		aliases:   []string{"bras gauche", "left_arm"},
		canonical: "left_arm_advanced",
		slots:     armSlots("l", "gauche", "gauche", 20),
	},
	{
		name:      "head",
		aliases:   []string{"tête", "tete"},
		canonical: "head",
		slots: []model.MotorSlot{
			{Name: "antenne gauche 30", Key: "l_antenna", Identifier: 30},
			{Name: "antenne droite 31", Key: "r_antenna", Identifier: 31},
		},
	},
}

var moduleDefs = []struct {
	module  model.Module
	aliases []string
}{
	{model.Module{Name: "gate", Binary: "gate"}, nil},
	{model.Module{Name: "arm motor board", Binary: "dxlv1"}, []string{"carte moteurs bras"}},
	{model.Module{Name: "head motor board", Binary: "dxlv2"}, []string{"carte moteurs tête"}},
	{model.Module{Name: "left gripper", Binary: "left-gripper-force-sensor"}, []string{"pince gauche"}},
	{model.Module{Name: "right gripper", Binary: "right-gripper-force-sensor"}, []string{"pince droite"}},
	{model.Module{Name: "orbita", Binary: "orbita"}, nil},
}

// NewCatalog builds the catalog. Parts named in reducedVoltageParts carry
// the reduced-voltage servo kind.
func NewCatalog(reducedVoltageParts []string) *Catalog {
	c := &Catalog{
		partAliases: make(map[string]int),
		modAliases:  make(map[string]int),
	}

	reduced := make(map[string]bool)
	for _, p := range reducedVoltageParts {
		reduced[normalize(p)] = true
	}

	for i, def := range partDefs {
		kind := model.DeviceKindStandardServo
		for _, n := range append([]string{def.name, def.canonical}, def.aliases...) {
			if reduced[normalize(n)] {
				kind = model.DeviceKindReducedVoltageServo
			}
			c.partAliases[normalize(n)] = i
		}

		c.parts = append(c.parts, model.RobotPart{
			Name:      def.name,
			Canonical: def.canonical,
			Kind:      kind,
			Slots:     append([]model.MotorSlot(nil), def.slots...),
		})
	}

	for i, def := range moduleDefs {
		c.modules = append(c.modules, def.module)
		for _, n := range append([]string{def.module.Name, def.module.Binary}, def.aliases...) {
			c.modAliases[normalize(n)] = i
		}
	}

	return c
}

// DefaultCatalog builds the catalog with the head as the reduced-voltage part
func DefaultCatalog() *Catalog {
	return NewCatalog([]string{"head"})
}

// Part looks a robot part up by display name, alias or canonical name
func (c *Catalog) Part(name string) (model.RobotPart, error) {
	i, ok := c.partAliases[normalize(name)]
	if !ok {
		return model.RobotPart{}, fmt.Errorf("%w: %q", ErrUnknownPart, name)
	}
	return copyPart(c.parts[i]), nil
}

// Parts returns every robot part
func (c *Catalog) Parts() []model.RobotPart {
	out := make([]model.RobotPart, 0, len(c.parts))
	for _, p := range c.parts {
		out = append(out, copyPart(p))
	}
	return out
}

// Module looks a module up by display name, alias or binary name
func (c *Catalog) Module(name string) (model.Module, error) {
	i, ok := c.modAliases[normalize(name)]
	if !ok {
		return model.Module{}, fmt.Errorf("%w: %q", ErrUnknownModule, name)
	}
	return c.modules[i], nil
}

// Modules returns every flashable module
func (c *Catalog) Modules() []model.Module {
	return append([]model.Module(nil), c.modules...)
}

func copyPart(p model.RobotPart) model.RobotPart {
	p.Slots = append([]model.MotorSlot(nil), p.Slots...)
	return p
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
