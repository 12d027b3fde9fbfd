package col

import (
	"encoding/json"
	"fmt"

	"github.com/shelfdb/shelf/lib/collection"
	"github.com/shelfdb/shelf/lib/search"
	"github.com/spf13/cobra"
)

var (
	addCmd = &cobra.Command{
		Use:   "add [record]",
		Short: "Adds a record (JSON object) to the collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := parseRecord(args[0])
			if err != nil {
				return err
			}
			if stored, err := rpcCollection.Add(rec); err != nil {
				return err
			} else {
				return printJSON(stored)
			}
		},
	}
	saveCmd = &cobra.Command{
		Use:   "save [record]",
		Short: "Inserts or fully replaces a record (JSON object) by its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := parseRecord(args[0])
			if err != nil {
				return err
			}
			if stored, err := rpcCollection.Save(rec); err != nil {
				return err
			} else {
				return printJSON(stored)
			}
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [id]",
		Short: "Reads the record for an id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			rec, err := rpcCollection.Get(id)
			if err != nil {
				return err
			}
			if rec == nil {
				fmt.Printf("id=%s, found=false\n", id)
				return nil
			}
			return printJSON(rec)
		},
	}
	getAllCmd = &cobra.Command{
		Use:   "get-all",
		Short: "Reads all records in the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := rpcCollection.GetAll()
			if err != nil {
				return err
			}
			return printJSON(recs)
		},
	}
	updateCmd = &cobra.Command{
		Use:   "update [id] [changes]",
		Short: "Merges changes (JSON object) into the record for an id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			changes, err := parseRecord(args[1])
			if err != nil {
				return err
			}
			rec, err := rpcCollection.Update(id, changes)
			if err != nil {
				return err
			}
			if rec == nil {
				fmt.Printf("id=%s, found=false\n", id)
				return nil
			}
			return printJSON(rec)
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [id]",
		Short: "Deletes the record for an id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if deleted, err := rpcCollection.Delete(id); err != nil {
				return err
			} else {
				fmt.Printf("id=%s, deleted=%t\n", id, deleted)
			}
			return nil
		},
	}
	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Deletes every record in the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcCollection.Clear(); err != nil {
				return err
			}
			fmt.Println("cleared successfully")
			return nil
		},
	}
	countCmd = &cobra.Command{
		Use:   "count",
		Short: "Counts the records in the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count, err := rpcCollection.Count(); err != nil {
				return err
			} else {
				fmt.Printf("count=%d\n", count)
			}
			return nil
		},
	}
	searchCmd = &cobra.Command{
		Use:   "search [criteria]",
		Short: "Searches the collection with criteria (JSON object), ordering and pagination",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			criteria, err := parseCriteria(args)
			if err != nil {
				return err
			}
			opts, err := searchOptions(cmd)
			if err != nil {
				return err
			}
			result, err := rpcCollection.Search(criteria, opts)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	filterCmd = &cobra.Command{
		Use:   "filter [criteria]",
		Short: "Returns every record matching the criteria (JSON object)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			criteria, err := parseCriteria(args)
			if err != nil {
				return err
			}
			recs, err := rpcCollection.Filter(criteria)
			if err != nil {
				return err
			}
			return printJSON(recs)
		},
	}
	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Prints record count and size distribution for the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := rpcCollection.Stats()
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
)

func init() {
	// Flags specific to search
	searchCmd.Flags().Int("limit", 0, "Maximum number of records to return (0 for all)")
	searchCmd.Flags().Int("offset", 0, "Number of matching records to skip")
	searchCmd.Flags().String("order-by", "", "Field to order the result by")
	searchCmd.Flags().Bool("desc", false, "Order descending instead of ascending")
	searchCmd.Flags().String("match", "auto", "String matching mode (auto, exact, partial)")
}

// parseRecord decodes a JSON object from the command line
func parseRecord(arg string) (collection.Record, error) {
	var rec collection.Record
	if err := json.Unmarshal([]byte(arg), &rec); err != nil {
		return nil, fmt.Errorf("record must be a JSON object: %w", err)
	}
	return rec, nil
}

// parseCriteria decodes the optional criteria argument (absent means match all)
func parseCriteria(args []string) (collection.Record, error) {
	if len(args) == 0 {
		return collection.Record{}, nil
	}
	criteria, err := parseRecord(args[0])
	if err != nil {
		return nil, fmt.Errorf("criteria must be a JSON object: %w", err)
	}
	return criteria, nil
}

// searchOptions reads the search flags into search.Options
func searchOptions(cmd *cobra.Command) (search.Options, error) {
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")
	orderBy, _ := cmd.Flags().GetString("order-by")
	desc, _ := cmd.Flags().GetBool("desc")
	match, _ := cmd.Flags().GetString("match")

	opts := search.Options{
		Limit:   limit,
		Offset:  offset,
		OrderBy: orderBy,
	}
	if desc {
		opts.OrderDirection = search.Descending
	}

	switch match {
	case "auto":
		opts.Mode = search.MatchAuto
	case "exact":
		opts.Mode = search.MatchExact
	case "partial":
		opts.Mode = search.MatchPartial
	default:
		return opts, fmt.Errorf("invalid match mode %s (expected one of: auto, exact, partial)", match)
	}

	return opts, nil
}

// printJSON writes a value as indented JSON to stdout
func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
