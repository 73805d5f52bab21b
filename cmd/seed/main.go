// Command seed creates the schema and a seated zone, and can mint a local
// access token for trying the API.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/iliyamo/venue-booking/internal/database"
	"github.com/iliyamo/venue-booking/internal/repository"
	"github.com/iliyamo/venue-booking/internal/utils"
)

func main() {
	_ = godotenv.Load()

	var (
		zone    = flag.StringP("zone", "z", "Stalls", "name of the zone to create")
		rows    = flag.IntP("rows", "r", 10, "number of seat rows (at most 26)")
		perRow  = flag.IntP("seats-per-row", "s", 20, "seats in each row")
		migrate = flag.Bool("migrate", true, "create missing tables first")
		token   = flag.Uint64("token-for", 0, "print an access token for this user id and exit")
		role    = flag.String("role", "CUSTOMER", "role claim of the printed token")
		ttl     = flag.Int("token-ttl", 60, "token lifetime in minutes")
	)
	flag.Parse()

	if *token != 0 {
		secret := os.Getenv("JWT_SECRET")
		if secret == "" {
			logrus.Fatal("JWT_SECRET must be set to mint a token")
		}
		tok, err := utils.NewAccessToken(secret, *token, *role, *ttl)
		if err != nil {
			logrus.Fatalf("sign token: %v", err)
		}
		fmt.Println(tok.Token)
		return
	}

	db, err := database.Open(os.Getenv("DB_USER"), os.Getenv("DB_PASS"), os.Getenv("DB_HOST"), os.Getenv("DB_PORT"), os.Getenv("DB_NAME"))
	if err != nil {
		logrus.Fatalf("connect: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if *migrate {
		if err := database.Migrate(ctx, db); err != nil {
			logrus.Fatalf("migrate: %v", err)
		}
	}
	z, err := repository.NewZoneRepo(db).CreateWithSeats(ctx, *zone, *rows, *perRow)
	if err != nil {
		logrus.Fatalf("seed zone: %v", err)
	}
	logrus.WithFields(logrus.Fields{
		"zone_id": z.ID,
		"zone":    z.Name,
		"seats":   *rows * *perRow,
	}).Info("zone created")
}
