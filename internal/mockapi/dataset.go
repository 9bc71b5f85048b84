// Package mockapi serves deterministic stations, wallets and transactions
// with the same list contract as the dashboard API (search, filters, sort,
// page/page_size, count/has_more). It backs the api tests and the
// serve-fixtures command.
package mockapi

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/voltline/evdash/internal/models"
)

// Dataset is the in-memory collection served by a Server.
type Dataset struct {
	Stations     []models.Station
	Wallets      []models.Wallet
	Transactions []models.Transaction
}

var (
	stationPrefixes = []string{"Harbor", "Central", "Fjord", "Airport", "Mall", "Depot", "Riverside", "Summit", "Market", "Station"}
	stationSuffixes = []string{"Fast", "Hub", "Plaza", "Point", "Park", "Lot"}
	cities          = []string{"Oslo", "Bergen", "Trondheim", "Stavanger", "Tromsø", "Drammen", "Kristiansand"}
	owners          = []string{"Nordic Fleet AS", "Ingrid Berg", "Lars Hansen", "Fjordtaxi", "Kari Nilsen", "Bybuss", "Ola Johansen", "Elbil Share"}
	powerLevels     = []float64{7.4, 11, 22, 50, 150, 350}
)

// epoch is the first fixture timestamp.
var epoch = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

// NewDataset generates a deterministic dataset. The same seed and sizes
// always produce the same records.
func NewDataset(seed uint64, stations, wallets, transactions int) *Dataset {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	d := &Dataset{
		Stations:     make([]models.Station, 0, stations),
		Wallets:      make([]models.Wallet, 0, wallets),
		Transactions: make([]models.Transaction, 0, transactions),
	}

	for i := 1; i <= stations; i++ {
		d.Stations = append(d.Stations, models.Station{
			ID:            fmt.Sprintf("st-%04d", i),
			Name:          fmt.Sprintf("%s %s %d", pick(rng, stationPrefixes), pick(rng, stationSuffixes), i),
			City:          pick(rng, cities),
			Status:        pick(rng, models.StationStatuses),
			ConnectorType: pick(rng, models.ConnectorTypes),
			PowerKW:       pick(rng, powerLevels),
			UpdatedAt:     epoch.Add(time.Duration(rng.IntN(90*24)) * time.Hour),
		})
	}

	for i := 1; i <= wallets; i++ {
		d.Wallets = append(d.Wallets, models.Wallet{
			ID:       fmt.Sprintf("wl-%04d", i),
			Owner:    pick(rng, owners),
			Currency: pick(rng, models.Currencies),
			Balance:  cents(rng.Float64() * 500),
			Status:   pick(rng, models.WalletStatuses),
		})
	}

	for i := 1; i <= transactions; i++ {
		tx := models.Transaction{
			ID:        fmt.Sprintf("tx-%05d", i),
			Type:      pick(rng, models.TransactionTypes),
			Status:    pick(rng, models.TransactionStatuses),
			CreatedAt: epoch.Add(time.Duration(i)*47*time.Minute + time.Duration(rng.IntN(60))*time.Second),
		}
		if wallets > 0 {
			tx.WalletID = d.Wallets[rng.IntN(wallets)].ID
		}
		switch tx.Type {
		case models.TransactionTopUp:
			tx.Amount = float64(10 * (1 + rng.IntN(20)))
		default:
			if stations > 0 {
				tx.StationID = d.Stations[rng.IntN(stations)].ID
			}
			tx.EnergyKWh = cents(5 + rng.Float64()*70)
			tx.Amount = cents(tx.EnergyKWh * 0.45)
		}
		d.Transactions = append(d.Transactions, tx)
	}

	return d
}

// DefaultDataset is the dataset served by serve-fixtures.
func DefaultDataset() *Dataset {
	return NewDataset(42, 137, 64, 512)
}

func pick[T any](rng *rand.Rand, values []T) T {
	return values[rng.IntN(len(values))]
}

func cents(v float64) float64 {
	return math.Round(v*100) / 100
}

func stationField(s models.Station, field string) any {
	switch field {
	case "id":
		return s.ID
	case "name":
		return s.Name
	case "city":
		return s.City
	case "status":
		return s.Status
	case "connector_type":
		return s.ConnectorType
	case "power_kw":
		return s.PowerKW
	case "updated_at":
		return s.UpdatedAt
	}
	return nil
}

func walletField(w models.Wallet, field string) any {
	switch field {
	case "id":
		return w.ID
	case "owner":
		return w.Owner
	case "currency":
		return w.Currency
	case "balance":
		return w.Balance
	case "status":
		return w.Status
	}
	return nil
}

func transactionField(t models.Transaction, field string) any {
	switch field {
	case "id":
		return t.ID
	case "wallet_id":
		return t.WalletID
	case "station_id":
		return t.StationID
	case "type":
		return t.Type
	case "status":
		return t.Status
	case "amount":
		return t.Amount
	case "energy_kwh":
		return t.EnergyKWh
	case "created_at":
		return t.CreatedAt
	}
	return nil
}
