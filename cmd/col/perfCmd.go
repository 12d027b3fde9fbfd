package col

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/shelfdb/shelf/cmd/util"
	"github.com/shelfdb/shelf/lib/collection"
	"github.com/shelfdb/shelf/lib/search"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for shelf servers",
		Long:    "",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfIDPrefix          = "__perf"
	perfLargeRecordSizeKB = 100
	perfNumThreads        = 10
	perfIDSpread          = 100
	perfSkip              = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. add,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-record-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the payload for the add-large test should be (in KB)"))
	key = "ids"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different record ids to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeRecordSizeKB = viper.GetInt("large-record-size")
	perfIDSpread = viper.GetInt("ids")
	perfNumThreads = viper.GetInt("threads")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

// perfResult couples throughput figures with a latency histogram so the
// report can show percentiles alongside ns/op.
type perfResult struct {
	bench testing.BenchmarkResult
	hist  metrics.Histogram
}

func runPerf(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for shelf servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	// Create results map
	results := make(map[string]perfResult)

	addHist := newHistogram()
	addBench := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("add") {
			return
		}

		// prepare ids
		getID, iter := getIDs("add")

		// cleanup
		b.Cleanup(func() {
			iter(func(id string) {
				if _, err := rpcCollection.Delete(id); err != nil {
					log.Printf("(add) - error deleting record: %v\n", err)
				}
			})
		})

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				rec := collection.Record{"id": getID(counter), "value": "test"}
				timed(addHist, func() error {
					_, err := rpcCollection.Save(rec)
					return err
				}, "add")
				counter++
			}
		})
	})

	results["add"] = perfResult{addBench, addHist}
	printResult("add", results["add"])

	addLargeHist := newHistogram()
	addLargeBench := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("add-large") {
			return
		}

		// prepare large payload
		largePayload := strings.Repeat("x", perfLargeRecordSizeKB*1024)

		// prepare ids
		getID, iter := getIDs("add-large")

		// cleanup
		b.Cleanup(func() {
			iter(func(id string) {
				if _, err := rpcCollection.Delete(id); err != nil {
					log.Printf("(add-large) - error deleting record: %v\n", err)
				}
			})
		})

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				rec := collection.Record{"id": getID(counter), "value": largePayload}
				timed(addLargeHist, func() error {
					_, err := rpcCollection.Save(rec)
					return err
				}, "add-large")
				counter++
			}
		})
	})

	results["add-large"] = perfResult{addLargeBench, addLargeHist}
	printResult("add-large", results["add-large"])

	getHist := newHistogram()
	getBench := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("get") {
			return
		}

		// prepare ids
		getID, iter := getIDs("get")

		// insert records
		iter(func(id string) {
			if _, err := rpcCollection.Save(collection.Record{"id": id, "value": "test"}); err != nil {
				log.Printf("(get) - error saving record: %v\n", err)
			}
		})

		// cleanup
		b.Cleanup(func() {
			iter(func(id string) {
				if _, err := rpcCollection.Delete(id); err != nil {
					log.Printf("(get) - error deleting record: %v\n", err)
				}
			})
		})

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				id := getID(counter)
				timed(getHist, func() error {
					_, err := rpcCollection.Get(id)
					return err
				}, "get")
				counter++
			}
		})
	})

	results["get"] = perfResult{getBench, getHist}
	printResult("get", results["get"])

	getMissHist := newHistogram()
	getMissBench := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("get-miss") {
			return
		}

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				id := fmt.Sprintf("%s-get-miss-%d", perfIDPrefix, counter%perfIDSpread)
				timed(getMissHist, func() error {
					_, err := rpcCollection.Get(id) // nil record expected
					return err
				}, "get-miss")
				counter++
			}
		})
	})

	results["get-miss"] = perfResult{getMissBench, getMissHist}
	printResult("get-miss", results["get-miss"])

	updateHist := newHistogram()
	updateBench := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("update") {
			return
		}

		// prepare ids
		getID, iter := getIDs("update")

		// insert records
		iter(func(id string) {
			if _, err := rpcCollection.Save(collection.Record{"id": id, "value": "test"}); err != nil {
				log.Printf("(update) - error saving record: %v\n", err)
			}
		})

		// cleanup
		b.Cleanup(func() {
			iter(func(id string) {
				if _, err := rpcCollection.Delete(id); err != nil {
					log.Printf("(update) - error deleting record: %v\n", err)
				}
			})
		})

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				id := getID(counter)
				timed(updateHist, func() error {
					_, err := rpcCollection.Update(id, collection.Record{"value": "updated"})
					return err
				}, "update")
				counter++
			}
		})
	})

	results["update"] = perfResult{updateBench, updateHist}
	printResult("update", results["update"])

	deleteHist := newHistogram()
	deleteBench := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("delete") {
			return
		}

		// prepare ids
		getID, iter := getIDs("delete")

		// insert records
		iter(func(id string) {
			if _, err := rpcCollection.Save(collection.Record{"id": id, "value": "test"}); err != nil {
				log.Printf("(delete) - error saving record: %v\n", err)
			}
		})

		// cleanup
		b.Cleanup(func() {
			iter(func(id string) {
				if _, err := rpcCollection.Delete(id); err != nil {
					log.Printf("(delete) - error deleting record: %v\n", err)
				}
			})
		})

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				id := getID(counter)
				timed(deleteHist, func() error {
					_, err := rpcCollection.Delete(id)
					return err
				}, "delete")
				counter++
			}
		})
	})

	results["delete"] = perfResult{deleteBench, deleteHist}
	printResult("delete", results["delete"])

	searchHist := newHistogram()
	searchBench := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("search") {
			return
		}

		// prepare ids
		_, iter := getIDs("search")

		// insert records
		iter(func(id string) {
			if _, err := rpcCollection.Save(collection.Record{"id": id, "group": "perf", "value": "test"}); err != nil {
				log.Printf("(search) - error saving record: %v\n", err)
			}
		})

		// cleanup
		b.Cleanup(func() {
			iter(func(id string) {
				if _, err := rpcCollection.Delete(id); err != nil {
					log.Printf("(search) - error deleting record: %v\n", err)
				}
			})
		})

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			criteria := collection.Record{"group": "perf"}
			opts := search.Options{Limit: 10}
			for pb.Next() {
				timed(searchHist, func() error {
					_, err := rpcCollection.Search(criteria, opts)
					return err
				}, "search")
			}
		})
	})

	results["search"] = perfResult{searchBench, searchHist}
	printResult("search", results["search"])

	mixedHist := newHistogram()
	mixedBench := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("mixed") {
			return
		}

		// prepare ids
		getID, iter := getIDs("mixed")

		// insert records
		iter(func(id string) {
			if _, err := rpcCollection.Save(collection.Record{"id": id, "value": "test"}); err != nil {
				log.Printf("(mixed) - error saving record: %v\n", err)
			}
		})

		// cleanup
		b.Cleanup(func() {
			iter(func(id string) {
				if _, err := rpcCollection.Delete(id); err != nil {
					log.Printf("(mixed) - error deleting record: %v\n", err)
				}
			})
		})

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				id := getID(counter)
				timed(mixedHist, func() error {
					var err error
					switch counter % 4 {
					case 0: // save
						_, err = rpcCollection.Save(collection.Record{"id": id, "value": "test"})
					case 1: // get
						_, err = rpcCollection.Get(id)
					case 2: // update
						_, err = rpcCollection.Update(id, collection.Record{"value": "mixed"})
					case 3: // count
						_, err = rpcCollection.Count()
					}
					return err
				}, "mixed")
				counter++
			}
		})
	})

	results["mixed"] = perfResult{mixedBench, mixedHist}
	printResult("mixed", results["mixed"])

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func newHistogram() metrics.Histogram {
	return metrics.NewHistogram(metrics.NewExpDecaySample(1028, 0.015))
}

// timed runs one operation, records its latency and logs failures
func timed(hist metrics.Histogram, op func() error, name string) {
	start := time.Now()
	err := op()
	hist.Update(time.Since(start).Nanoseconds())
	if err != nil {
		log.Printf("(%s) - operation failed: %v\n", name, err)
	}
}

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// creates an array of test record ids and functions to work with them
func getIDs(prefix string) (func(int) string, func(func(string))) {
	ids := make([]string, perfIDSpread)
	for i := 0; i < perfIDSpread; i++ {
		ids[i] = fmt.Sprintf("%s-%s-%d", perfIDPrefix, prefix, i)
	}

	// Function to get an id by index (with wraparound)
	getID := func(i int) string {
		return ids[i%perfIDSpread]
	}

	// Function to iterate over all ids and apply a function to each
	iterateIDs := func(fn func(string)) {
		for _, id := range ids {
			fn(id)
		}
	}

	return getID, iterateIDs
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result perfResult) {
	if result.bench.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.bench.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)
	ps := result.hist.Percentiles([]float64{0.5, 0.95, 0.99})

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tp50=%s p95=%s p99=%s\n",
		test, nsPerOp, time.Duration(nsPerOp), opsPerSec,
		time.Duration(ps[0]), time.Duration(ps[1]), time.Duration(ps[2]))
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]perfResult) error {
	config := util.GetClientConfig()

	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "P50Ns", "P95Ns", "P99Ns", "Skipped",
		"Endpoints", "TimeoutSec", "RetryCount", "ConnectionsPerEndpoint",
		"DatabaseID", "Collection", "Serializer", "Transport",
		"Threads", "LargeRecordSizeKB", "IDs Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.bench.NsPerOp() == 0 {
			skipped = "true"
			nsPerOp = 0
			opsPerSec = 0
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.bench.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		ps := result.hist.Percentiles([]float64{0.5, 0.95, 0.99})

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			fmt.Sprintf("%.0f", ps[0]),
			fmt.Sprintf("%.0f", ps[1]),
			fmt.Sprintf("%.0f", ps[2]),
			skipped,
			strings.Join(config.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.RetryCount),
			strconv.Itoa(config.ConnectionsPerEndpoint),
			strconv.FormatUint(util.GetDatabaseID(), 10),
			util.GetCollectionName(),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeRecordSizeKB),
			strconv.Itoa(perfIDSpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
