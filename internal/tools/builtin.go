// Package tools defines the builtin tool set of the assistant and
// registers it into the catalog.
package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/castaldi/frank/internal/catalog"
)

// RegisterBuiltins adds every builtin tool to the registry, enabled.
func RegisterBuiltins(reg *catalog.Registry) error {
	for _, desc := range []*catalog.Descriptor{
		SetRoute(),
		GetWeather(),
		VehicleStatus(),
		MaintenanceCheck(),
	} {
		if err := reg.Register(desc, true); err != nil {
			return err
		}
	}
	return nil
}

// routePreferences are the camper-specific toggles a route request can
// carry. They default to off.
var routePreferences = []string{
	"avoid_tolls", "avoid_motorways", "avoid_ferries",
	"avoid_low_bridges", "avoid_ztl",
}

// SetRoute plans a route to a destination. The actual route computation
// is a placeholder; an external planner plugs in behind this descriptor.
func SetRoute() *catalog.Descriptor {
	params := map[string]catalog.ParamSpec{
		"destination": {Type: "string", Required: true, Description: "Località di arrivo"},
	}
	for _, p := range routePreferences {
		params[p] = catalog.ParamSpec{Type: "bool", Description: "Preferenza di percorso", Default: false}
	}

	return &catalog.Descriptor{
		Name:        "set_route",
		Category:    catalog.CategoryNavigation,
		Description: "Imposta un percorso verso una destinazione, con preferenze adatte al camper",
		Parameters:  params,
		Execute: func(ctx context.Context, p map[string]any) (*catalog.ExecResult, error) {
			dest, _ := p["destination"].(string)
			dest = strings.TrimSpace(dest)
			if dest == "" {
				return &catalog.ExecResult{
					Status:  catalog.ExecError,
					Message: "destinazione mancante",
				}, nil
			}

			var active []string
			for _, pref := range routePreferences {
				if v, _ := p[pref].(bool); v {
					active = append(active, pref)
				}
			}

			msg := fmt.Sprintf("Percorso verso %s impostato", dest)
			if len(active) > 0 {
				msg += " (" + strings.Join(active, ", ") + ")"
			}
			return &catalog.ExecResult{
				Status:  catalog.ExecSuccess,
				Message: msg,
				Data: map[string]any{
					"destination": dest,
					"preferences": active,
				},
			}, nil
		},
	}
}

// GetWeather reports the forecast for a location. Placeholder data until a
// provider is wired in.
func GetWeather() *catalog.Descriptor {
	return &catalog.Descriptor{
		Name:        "get_weather",
		Category:    catalog.CategoryWeather,
		Description: "Previsioni meteo per una località",
		Parameters: map[string]catalog.ParamSpec{
			"location": {Type: "string", Required: true, Description: "Località"},
			"day":      {Type: "string", Description: "Giorno richiesto, default oggi"},
		},
		Execute: func(ctx context.Context, p map[string]any) (*catalog.ExecResult, error) {
			loc, _ := p["location"].(string)
			loc = strings.TrimSpace(loc)
			if loc == "" {
				return &catalog.ExecResult{Status: catalog.ExecError, Message: "località mancante"}, nil
			}
			day, _ := p["day"].(string)
			if day == "" {
				day = "oggi"
			}
			return &catalog.ExecResult{
				Status:  catalog.ExecSuccess,
				Message: fmt.Sprintf("Previsioni per %s (%s): dati non ancora collegati a un provider", loc, day),
				Data:    map[string]any{"location": loc, "day": day},
			}, nil
		},
	}
}

// VehicleStatus reads the onboard levels. Values are static until the
// vehicle bus adapter exists.
func VehicleStatus() *catalog.Descriptor {
	return &catalog.Descriptor{
		Name:        "vehicle_status",
		Category:    catalog.CategoryVehicle,
		Description: "Stato del veicolo: batteria, acqua, gas",
		Parameters:  map[string]catalog.ParamSpec{},
		Execute: func(ctx context.Context, p map[string]any) (*catalog.ExecResult, error) {
			data := map[string]any{
				"battery_percent":     87,
				"fresh_water_percent": 62,
				"gas_percent":         45,
			}
			return &catalog.ExecResult{
				Status:  catalog.ExecSuccess,
				Message: "Batteria 87%, acqua 62%, gas 45%",
				Data:    data,
			}, nil
		},
	}
}

// MaintenanceCheck reports upcoming maintenance deadlines.
func MaintenanceCheck() *catalog.Descriptor {
	return &catalog.Descriptor{
		Name:        "maintenance_check",
		Category:    catalog.CategoryMaintenance,
		Description: "Controlla le prossime scadenze di manutenzione",
		Parameters:  map[string]catalog.ParamSpec{},
		Execute: func(ctx context.Context, p map[string]any) (*catalog.ExecResult, error) {
			next := time.Now().AddDate(0, 2, 0).Format("2006-01-02")
			return &catalog.ExecResult{
				Status:  catalog.ExecSuccess,
				Message: fmt.Sprintf("Prossimo tagliando previsto per il %s", next),
				Data:    map[string]any{"next_service": next},
			}, nil
		},
	}
}
