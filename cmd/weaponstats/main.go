package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/annel0/arena-combat/internal/stats"
	"github.com/annel0/arena-combat/internal/weapon"
)

func main() {
	catalogPath := flag.String("catalog", "", "YAML-каталог оружия (пусто — встроенный)")
	flag.Parse()

	catalog := weapon.DefaultCatalog()
	if *catalogPath != "" {
		var err error
		catalog, err = weapon.LoadCatalogFile(*catalogPath)
		if err != nil {
			log.Fatalf("❌ Ошибка загрузки каталога: %v", err)
		}
	}

	fmt.Fprint(os.Stdout, stats.Report(catalog.Definitions()))
}
