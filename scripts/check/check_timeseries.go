package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	_ "github.com/lib/pq"
)

// 排查"洞察会话看不到数据"：检查 iot_timeseries 最近是否有观测行
func main() {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		getEnv("DB_HOST", "localhost"),
		parseInt(getEnv("DB_PORT", "5432"), 5432),
		getEnv("DB_USER", "postgres"),
		getEnv("DB_PASSWORD", "postgres"),
		getEnv("DB_NAME", "owlrd"),
		getEnv("DB_SSLMODE", "disable"),
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	// 默认看最近 1 小时
	windowMinutes := parseInt(getEnv("WINDOW_MINUTES", "60"), 60)
	since := time.Now().Add(-time.Duration(windowMinutes) * time.Minute).UTC()

	query := `
		SELECT
			device_id::text,
			tenant_id::text,
			COUNT(*) AS total_rows,
			COUNT(heart_rate) AS heart_rate_rows,
			COUNT(respiratory_rate) AS respiratory_rate_rows,
			COUNT(radar_pos_x) AS radar_pos_rows,
			MAX(timestamp) AS latest
		FROM iot_timeseries
		WHERE data_type = 'observation'
		  AND timestamp >= $1
		GROUP BY device_id, tenant_id
		ORDER BY latest DESC
		LIMIT 50;
	`

	rows, err := db.Query(query, since)
	if err != nil {
		log.Fatalf("Failed to query: %v", err)
	}
	defer rows.Close()

	fmt.Printf("最近 %d 分钟的观测行（按设备）：\n", windowMinutes)
	fmt.Println("device_id | tenant_id | total | hr | rr | radar | latest")

	found := 0
	for rows.Next() {
		var deviceID, tenantID string
		var total, hr, rr, radar int64
		var latest time.Time
		if err := rows.Scan(&deviceID, &tenantID, &total, &hr, &rr, &radar, &latest); err != nil {
			log.Fatalf("Failed to scan row: %v", err)
		}
		found++
		fmt.Printf("%s | %s | %d | %d | %d | %d | %s\n",
			deviceID, tenantID, total, hr, rr, radar, latest.Format(time.RFC3339))
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("Row iteration failed: %v", err)
	}

	if found == 0 {
		fmt.Println("（无数据 —— 检查 transformer 是否在写入，或把 WINDOW_MINUTES 调大）")
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func parseInt(s string, defaultValue int) int {
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return defaultValue
}
