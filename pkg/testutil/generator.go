// Package testutil provides deterministic GIS fixtures, a fake data source
// and assertions for tests. All generators produce the same output for the
// same seed.
package testutil

import (
	"fmt"
	"math/rand"

	"github.com/vanderheijden86/seltree/pkg/model"
)

// Layer ids of the generated dataset.
const (
	LayerParcels   = "parcels"
	LayerBuildings = "buildings"
	LayerHydrants  = "hydrants"
	TableOwners    = "owners"
	TablePermits   = "permits"
)

// Relationship class ids of the generated dataset.
const (
	RelParcelOwners     int64 = 1
	RelParcelBuildings  int64 = 2
	RelBuildingPermits  int64 = 3
	RelOwnerPermits     int64 = 4
	RelHydrantBuildings int64 = 5
)

// GeneratorConfig controls dataset generation.
type GeneratorConfig struct {
	Seed             int64 // random seed (0 = 42)
	FeaturesPerLayer int   // features per layer or table (default 5)
	// LinkProbability is the chance that a destination record references
	// an origin feature; unlinked records get no key.
	LinkProbability float64
}

// DefaultConfig returns a config suitable for most tests.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{Seed: 42, FeaturesPerLayer: 5, LinkProbability: 0.8}
}

// Generator creates datasets.
type Generator struct {
	cfg GeneratorConfig
	rng *rand.Rand
}

// New creates a Generator with the given config.
func New(cfg GeneratorConfig) *Generator {
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	if cfg.FeaturesPerLayer <= 0 {
		cfg.FeaturesPerLayer = 5
	}
	if cfg.LinkProbability <= 0 {
		cfg.LinkProbability = 0.8
	}
	return &Generator{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}
}

// NewDefault creates a Generator with the default config.
func NewDefault() *Generator {
	return New(DefaultConfig())
}

// Layers returns the layer definitions used by Dataset.
func Layers() []model.Layer {
	return []model.Layer{
		{ID: LayerParcels, Title: "Parcels", Kind: model.LayerKindFeature, GeometryType: model.GeometryPolygon, DisplayField: "ADDRESS"},
		{ID: LayerBuildings, Title: "Buildings", Kind: model.LayerKindFeature, GeometryType: model.GeometryPolygon, DisplayField: "NAME"},
		{ID: LayerHydrants, Title: "Hydrants", Kind: model.LayerKindFeature, GeometryType: model.GeometryPoint, DisplayField: "ASSET_ID"},
		{ID: TableOwners, Title: "Owners", Kind: model.LayerKindTable, DisplayField: "OWNER_NAME"},
		{ID: TablePermits, Title: "Permits", Kind: model.LayerKindTable, DisplayField: "PERMIT_NO"},
	}
}

// Relationships returns the relationship classes used by Dataset.
func Relationships() []model.RelationshipClass {
	return []model.RelationshipClass{
		{ID: RelParcelOwners, Name: "Parcel owners", OriginLayerID: LayerParcels, DestinationLayerID: TableOwners, OriginKey: "PARCEL_ID", DestinationKey: "PARCEL_ID", Cardinality: model.CardinalityOneToMany},
		{ID: RelParcelBuildings, Name: "Buildings on parcel", OriginLayerID: LayerParcels, DestinationLayerID: LayerBuildings, OriginKey: "PARCEL_ID", DestinationKey: "PARCEL_ID", Cardinality: model.CardinalityOneToMany},
		{ID: RelBuildingPermits, Name: "Building permits", OriginLayerID: LayerBuildings, DestinationLayerID: TablePermits, OriginKey: "BUILDING_ID", DestinationKey: "BUILDING_ID", Cardinality: model.CardinalityOneToMany},
		{ID: RelOwnerPermits, Name: "Permits by owner", OriginLayerID: TableOwners, DestinationLayerID: TablePermits, OriginKey: "OWNER_ID", DestinationKey: "APPLICANT_ID", Cardinality: model.CardinalityOneToMany},
		{ID: RelHydrantBuildings, Name: "Hydrant coverage", OriginLayerID: LayerHydrants, DestinationLayerID: LayerBuildings, OriginKey: "ZONE", DestinationKey: "FIRE_ZONE", Cardinality: model.CardinalityOneToMany},
	}
}

// Dataset generates the full dataset.
func (g *Generator) Dataset() model.Dataset {
	n := g.cfg.FeaturesPerLayer
	ds := model.Dataset{Layers: Layers(), Relationships: Relationships()}

	for i := 1; i <= n; i++ {
		ds.Features = append(ds.Features, model.Feature{
			LayerID:  LayerParcels,
			ObjectID: int64(i),
			Attributes: map[string]any{
				"PARCEL_ID": fmt.Sprintf("P-%03d", i),
				"ADDRESS":   fmt.Sprintf("%d Main St", 100+i*2),
				"AREA_M2":   500 + g.rng.Intn(1500),
			},
			Geometry: g.square(float64(i)*10, 0, 8),
		})
	}
	for i := 1; i <= n; i++ {
		ds.Features = append(ds.Features, model.Feature{
			LayerID:  LayerBuildings,
			ObjectID: int64(i),
			Attributes: map[string]any{
				"BUILDING_ID": fmt.Sprintf("B-%03d", i),
				"NAME":        fmt.Sprintf("Building %d", i),
				"PARCEL_ID":   g.maybeKey("P-%03d", n),
				"FIRE_ZONE":   fmt.Sprintf("Z%d", 1+g.rng.Intn(3)),
			},
			Geometry: g.square(float64(i)*10+2, 2, 4),
		})
	}
	for i := 1; i <= n; i++ {
		ds.Features = append(ds.Features, model.Feature{
			LayerID:  LayerHydrants,
			ObjectID: int64(i),
			Attributes: map[string]any{
				"ASSET_ID": fmt.Sprintf("H-%03d", i),
				"ZONE":     fmt.Sprintf("Z%d", 1+(i-1)%3),
			},
			Geometry: &model.Geometry{Type: model.GeometryPoint, Coordinates: [][2]float64{{float64(i) * 12, -5}}},
		})
	}
	for i := 1; i <= n; i++ {
		ds.Features = append(ds.Features, model.Feature{
			LayerID:  TableOwners,
			ObjectID: int64(i),
			Attributes: map[string]any{
				"OWNER_ID":   fmt.Sprintf("O-%03d", i),
				"OWNER_NAME": fmt.Sprintf("Owner %c", 'A'+rune((i-1)%26)),
				"PARCEL_ID":  g.maybeKey("P-%03d", n),
			},
		})
	}
	for i := 1; i <= n; i++ {
		ds.Features = append(ds.Features, model.Feature{
			LayerID:  TablePermits,
			ObjectID: int64(i),
			Attributes: map[string]any{
				"PERMIT_NO":    fmt.Sprintf("2025-%04d", i),
				"BUILDING_ID":  g.maybeKey("B-%03d", n),
				"APPLICANT_ID": g.maybeKey("O-%03d", n),
			},
		})
	}
	return ds
}

// maybeKey returns a random key of the given format, or nil for an
// unlinked record.
func (g *Generator) maybeKey(format string, n int) any {
	if g.rng.Float64() >= g.cfg.LinkProbability {
		return nil
	}
	return fmt.Sprintf(format, 1+g.rng.Intn(n))
}

func (g *Generator) square(x, y, size float64) *model.Geometry {
	jitter := g.rng.Float64()
	return &model.Geometry{
		Type: model.GeometryPolygon,
		Coordinates: [][2]float64{
			{x, y}, {x + size + jitter, y}, {x + size + jitter, y + size}, {x, y + size}, {x, y},
		},
	}
}

// QuickDataset returns the default dataset.
func QuickDataset() model.Dataset {
	return NewDefault().Dataset()
}

// LinkedDataset returns a dataset in which every destination record
// references an origin feature.
func LinkedDataset(featuresPerLayer int) model.Dataset {
	return New(GeneratorConfig{Seed: 7, FeaturesPerLayer: featuresPerLayer, LinkProbability: 1}).Dataset()
}
