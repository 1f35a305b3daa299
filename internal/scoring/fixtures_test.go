package scoring

import (
	"github.com/Veraticus/boq-price-match/internal/config"
	"github.com/Veraticus/boq-price-match/internal/model"
)

func testCatalog() []model.PriceItem {
	return []model.PriceItem{
		{Code: "CON-025", Description: "Concrete grade 25 in suspended slabs", Unit: "m3", Category: "Concrete Works", Rate: 145},
		{Code: "EL-104", Description: "Armoured cable 4mm2 2 core XLPE/SWA", Unit: "m", Category: "Electrical", Subcategory: "Cables", Rate: 12.5},
		{Code: "EXC-010", Description: "Excavation in trenches not exceeding 1.5m deep", Unit: "m3", Category: "Earthworks", Rate: 18},
		{Code: "FIN-220", Description: "Ceramic floor tiles 300x300mm bedded in mortar", Unit: "m2", Category: "Finishes", Keywords: []string{"tiling", "flooring"}, Rate: 32},
		{Code: "GW001", Description: "Galvanised steel guard rail", Unit: "m", Category: "Metalwork", Rate: 85},
	}
}

func testConfig() config.Config {
	return config.Default()
}
