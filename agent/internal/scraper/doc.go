// Package scraper fetches one metric reading per Scraper.
//
// Sources (see config.Source):
//   - alphavantage_fx: Alpha Vantage CURRENCY_EXCHANGE_RATE for a currency pair
//   - alphavantage_yield: Alpha Vantage TREASURY_YIELD, newest parseable datapoint
//   - prometheus: sum of a metric family from a text exposition endpoint,
//     optionally filtered by labels
//   - static: a fixed value
//
// A Scraper never fails past its boundary: Scrape always returns a Result,
// and a failed fetch yields a missing Value with Err set. HTTP sources share
// one resty client per scraper with a per-request timeout and a fixed number
// of attempts separated by a fixed wait. Provider rate-limit and error bodies
// arrive with status 200 and are not retried.
package scraper
