package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"
)

// Result 记录单次请求的 HTTP 结果，便于聚合统计。
type Result struct {
	Status int
	Body   string
	Err    error
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	lotID := flag.Int("lot", 0, "lot id to bid on; 0 creates and activates a new auction")
	adminToken := flag.String("admin-token", "dev-admin-token", "admin token for activate endpoint")

	// 并发出价：不同用户同时抢同一个 lot
	nUsers := flag.Int("users", 100, "distinct bidders")
	concurrency := flag.Int("c", 50, "max concurrency")
	startingBid := flag.Int64("starting-bid", 100, "starting bid of the generated lot")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	if *lotID == 0 {
		id, err := setupLot(client, *baseURL, *adminToken, *startingBid)
		if err != nil {
			fmt.Println("setup failed:", err)
			os.Exit(1)
		}
		*lotID = id
		fmt.Println("created live lot", id)
	}

	// 出价前置条件：每个用户先登记支付方式
	for u := 1; u <= *nUsers; u++ {
		if _, err := doJSON(client, http.MethodPost, fmt.Sprintf("%s/api/users/%d/payment_method", *baseURL, u),
			map[string]string{"reference": fmt.Sprintf("card_%d", u)}, nil); err != nil {
			fmt.Println("register payment method failed:", err)
			os.Exit(1)
		}
	}

	// 1) 一致性测试：不同用户并发出价，最后只能有一个领先者且价格一致
	fmt.Printf("start bid storm: lot=%d users=%d concurrency=%d\n", *lotID, *nUsers, *concurrency)
	results := runBids(client, *baseURL, *lotID, *nUsers, *concurrency, func(idx int) (int64, int64, int64) {
		maxBid := *startingBid + int64(idx+1)*10
		return int64(idx + 1), maxBid, maxBid
	})
	printSummary("bid_storm", results)

	if err := verifyLot(client, *baseURL, *lotID); err != nil {
		fmt.Println("verify FAILED:", err)
		os.Exit(1)
	}
	fmt.Println("verify ok: exactly one winning bid, amount == current_bid")

	// 2) 限流测试：同一个用户连续出价（BID_RATE_LIMIT 默认 20/s）
	fmt.Println("\nstart rate limit test: same user, 50 requests, concurrency 50")
	results = runBids(client, *baseURL, *lotID, 50, 50, func(int) (int64, int64, int64) {
		return 1, *startingBid, *startingBid
	})
	printSummary("rate_limit", results)
}

// setupLot 建一场只有一个 lot 的拍卖会并上线，返回 lot id。
func setupLot(client *http.Client, baseURL, adminToken string, startingBid int64) (int, error) {
	now := time.Now().UTC()
	var auction struct {
		ID int `json:"id"`
	}
	if _, err := doJSON(client, http.MethodPost, baseURL+"/api/auctions", map[string]any{
		"title":                      "loadtest",
		"starts_at":                  now.Format(time.RFC3339),
		"ends_at":                    now.Add(30 * time.Minute).Format(time.RFC3339),
		"buyers_premium_percent":     "10",
		"auto_extend_minutes":        2,
		"lot_close_interval_seconds": 0,
	}, &auction); err != nil {
		return 0, fmt.Errorf("create auction: %w", err)
	}

	var lot struct {
		ID int `json:"id"`
	}
	if _, err := doJSON(client, http.MethodPost, fmt.Sprintf("%s/api/auctions/%d/lots", baseURL, auction.ID), map[string]any{
		"lot_number":   1,
		"title":        "loadtest lot",
		"starting_bid": startingBid,
	}, &lot); err != nil {
		return 0, fmt.Errorf("add lot: %w", err)
	}

	req, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/api/auctions/%d/activate", baseURL, auction.ID), nil)
	req.Header.Set("X-Admin-Token", adminToken)
	if _, err := send(client, req, nil); err != nil {
		return 0, fmt.Errorf("activate: %w", err)
	}
	return lot.ID, nil
}

func runBids(client *http.Client, baseURL string, lotID, total, concurrency int, next func(idx int) (userID, amount, maxBid int64)) []Result {
	type Req struct {
		UserID int64 `json:"user_id"`
		Amount int64 `json:"amount"`
		MaxBid int64 `json:"max_bid"`
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, total)

	for i := 0; i < total; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			userID, amount, maxBid := next(idx)
			results[idx] = bidOnce(client, baseURL, lotID, Req{UserID: userID, Amount: amount, MaxBid: maxBid})
		}(i)
	}

	wg.Wait()
	return results
}

func bidOnce(client *http.Client, baseURL string, lotID int, req any) Result {
	b, _ := json.Marshal(req)
	url := fmt.Sprintf("%s/api/lots/%d/bids", baseURL, lotID)
	httpReq, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return Result{Status: resp.StatusCode, Body: string(body)}
}

// verifyLot 校验出价历史里只有一条领先记录，且金额等于 lot 的 current_bid。
func verifyLot(client *http.Client, baseURL string, lotID int) error {
	var lot struct {
		CurrentBid      *int64 `json:"current_bid"`
		BidCount        int    `json:"bid_count"`
		WinningBidderID *int64 `json:"winning_bidder_id"`
	}
	if _, err := doJSON(client, http.MethodGet, fmt.Sprintf("%s/api/lots/%d", baseURL, lotID), nil, &lot); err != nil {
		return err
	}
	if lot.CurrentBid == nil || lot.WinningBidderID == nil {
		return fmt.Errorf("lot has no winning bid")
	}

	var bids []struct {
		UserID    int64 `json:"user_id"`
		Amount    int64 `json:"amount"`
		IsWinning bool  `json:"is_winning"`
	}
	if _, err := doJSON(client, http.MethodGet, fmt.Sprintf("%s/api/lots/%d/bids?limit=200", baseURL, lotID), nil, &bids); err != nil {
		return err
	}
	winning := 0
	for _, b := range bids {
		if !b.IsWinning {
			continue
		}
		winning++
		if b.Amount != *lot.CurrentBid || b.UserID != *lot.WinningBidderID {
			return fmt.Errorf("winning bid user=%d amount=%d, lot winner=%d current_bid=%d",
				b.UserID, b.Amount, *lot.WinningBidderID, *lot.CurrentBid)
		}
	}
	if winning != 1 {
		return fmt.Errorf("expected 1 winning bid in history, got %d", winning)
	}
	fmt.Printf("lot %d: current_bid=%d winner=%d bid_count=%d\n", lotID, *lot.CurrentBid, *lot.WinningBidderID, lot.BidCount)
	return nil
}

// printSummary 聚合输出不同状态码分布。
func printSummary(name string, results []Result) {
	count := map[int]int{}
	errCount := 0
	for _, r := range results {
		if r.Err != nil {
			errCount++
			continue
		}
		count[r.Status]++
	}
	fmt.Printf("[%s] http status summary:\n", name)
	for _, code := range []int{200, 400, 402, 404, 409, 429, 500, 503} {
		if count[code] > 0 {
			fmt.Printf("  %d -> %d\n", code, count[code])
		}
	}
	if errCount > 0 {
		fmt.Printf("  errors -> %d\n", errCount)
	}
}

// doJSON 发送 JSON 请求，out 非空时把 data 字段解到 out。
func doJSON(client *http.Client, method, url string, body, out any) (envelope, error) {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, url, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return send(client, req, out)
}

func send(client *http.Client, req *http.Request, out any) (envelope, error) {
	resp, err := client.Do(req)
	if err != nil {
		return envelope{}, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return envelope{}, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(b))
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return envelope{}, err
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return env, err
		}
	}
	return env, nil
}
