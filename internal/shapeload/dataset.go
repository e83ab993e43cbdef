package shapeload

// Dataset describes one shapefile product and its destination table.
type Dataset struct {
	Name       string
	Table      string
	Fields     []string // DBF attribute names, kept as-is as column names
	SourceSRID int      // SRID of the shapefile coordinates
	GeomIndex  bool     // create a GiST index after load
}

// SRIDMetricSP is SIRGAS 2000 / UTM zone 23S, the projected CRS used by São
// Paulo municipal datasets and for metric distance math.
const SRIDMetricSP = 31983

// SRIDWGS84 is the storage CRS; everything is transformed to it on load.
const SRIDWGS84 = 4326

// Sectors is the census-sector boundary dataset (IBGE CD2022 cut for SP).
var Sectors = Dataset{
	Name:       "sectors",
	Table:      "sp_setores",
	Fields:     []string{"CD_SETOR", "CD_MUN", "NM_MUN", "CD_UF", "NM_UF", "CD_SIT", "AREA_KM2"},
	SourceSRID: SRIDWGS84,
	GeomIndex:  true,
}

// MetroStations is the metro station POI dataset published in the SP
// municipal projected CRS.
var MetroStations = Dataset{
	Name:       "metro-stations",
	Table:      "pois_metro_sp",
	Fields:     []string{"emt_nome", "emt_linha", "emt_empres", "emt_situac"},
	SourceSRID: SRIDMetricSP,
	GeomIndex:  true,
}
